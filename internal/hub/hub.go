// Package hub fans classified events and stream status out to dashboard subscribers.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
	"github.com/Jamesd000/crypto-live-dashboard/internal/metrics"
)

// DefaultBuffer is the per-subscriber queue length used when none is configured.
const DefaultBuffer = 256

// MessageType tags what a Message carries.
type MessageType string

const (
	MessageAlert  MessageType = "alert"
	MessageStatus MessageType = "status"
)

// Message is one item delivered to a subscriber. Exactly one of Alert or Status
// is meaningful, selected by Type.
type Message struct {
	Type   MessageType
	Alert  market.ClassifiedEvent
	Status market.StreamStatus
}

// MarshalJSON emits the feed envelope {"type": ..., "data": ...}.
func (m Message) MarshalJSON() ([]byte, error) {
	var data any = m.Alert
	if m.Type == MessageStatus {
		data = m.Status
	}
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		Data any         `json:"data"`
	}{m.Type, data})
}

// UnmarshalJSON decodes the feed envelope back into a Message.
func (m *Message) UnmarshalJSON(b []byte) error {
	var env struct {
		Type MessageType     `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	m.Type = env.Type
	if env.Type == MessageStatus {
		return json.Unmarshal(env.Data, &m.Status)
	}
	return json.Unmarshal(env.Data, &m.Alert)
}

// Hub delivers every published message to every live subscription without ever
// blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	log    zerolog.Logger
}

// New creates a hub whose subscriptions queue up to buffer messages each.
func New(buffer int, log zerolog.Logger) *Hub {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    log.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers a consumer. The subscription is removed and its channel
// closed when ctx ends or Close is called.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	s := &Subscription{hub: h, ch: make(chan Message, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debug().Int("subscribers", n).Msg("subscribed")

	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s
}

// Publish hands an alert to every subscriber.
func (h *Hub) Publish(ce market.ClassifiedEvent) {
	h.broadcast(Message{Type: MessageAlert, Alert: ce})
}

// PublishStatus hands a stream status change to every subscriber.
func (h *Hub) PublishStatus(st market.StreamStatus) {
	h.broadcast(Message{Type: MessageStatus, Status: st})
}

func (h *Hub) broadcast(m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.offer(m) {
			metrics.SubscriberDrops.Inc()
		}
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debug().Int("subscribers", n).Uint64("dropped", s.Dropped()).Msg("unsubscribed")
}

// Subscription is one consumer's bounded queue. When the queue is full the
// oldest message is evicted to make room for the newest.
type Subscription struct {
	hub     *Hub
	ch      chan Message
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
	once    sync.Once
	stop    func() bool
}

// C is the receive side of the subscription. It is closed after Close.
func (s *Subscription) C() <-chan Message { return s.ch }

// Dropped counts messages evicted from this subscription because it fell behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close deregisters the subscription and closes its channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
}

// offer enqueues m, evicting the oldest queued message if full. It reports
// whether a message was dropped.
func (s *Subscription) offer(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- m:
		return false
	default:
	}
	dropped := false
	select {
	case <-s.ch:
		s.dropped.Add(1)
		dropped = true
	default:
		// the consumer drained the queue in between; nothing to evict
	}
	// Only offer sends under s.mu, so there is room now.
	select {
	case s.ch <- m:
	default:
	}
	return dropped
}
