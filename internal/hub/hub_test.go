package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
)

func whale(id string) market.ClassifiedEvent {
	ev := market.Event{Symbol: "BTCUSDT", Kind: market.KindTrade, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(200)}
	return market.NewClassifiedEvent(ev, id, market.CategoryWhale)
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	h := New(4, zerolog.Nop())
	a := h.Subscribe(context.Background())
	b := h.Subscribe(context.Background())
	defer a.Close()
	defer b.Close()

	h.Publish(whale("1"))
	for _, s := range []*Subscription{a, b} {
		select {
		case m := <-s.C():
			if m.Type != MessageAlert || m.Alert.ID != "1" {
				t.Fatalf("unexpected message %+v", m)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive alert")
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	const buffer = 3
	h := New(buffer, zerolog.Nop())
	slow := h.Subscribe(context.Background())
	defer slow.Close()

	var last uint64
	for i := 0; i < 10; i++ {
		h.Publish(whale(strconv.Itoa(i)))
		if len(slow.C()) > buffer {
			t.Fatalf("buffer exceeded capacity: %d", len(slow.C()))
		}
		if d := slow.Dropped(); d < last {
			t.Fatalf("drop counter went backwards: %d < %d", d, last)
		} else {
			last = d
		}
	}
	if slow.Dropped() != 7 {
		t.Fatalf("expected 7 drops, got %d", slow.Dropped())
	}
	for _, want := range []string{"7", "8", "9"} {
		m := <-slow.C()
		if m.Alert.ID != want {
			t.Fatalf("expected newest messages retained, got %s want %s", m.Alert.ID, want)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	h := New(1, zerolog.Nop())
	for i := 0; i < 5; i++ {
		defer h.Subscribe(context.Background()).Close()
	}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			h.Publish(whale(strconv.Itoa(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("publish blocked on stalled subscribers")
	}
}

func TestFastSubscriberUnaffectedBySlowOne(t *testing.T) {
	h := New(2, zerolog.Nop())
	slow := h.Subscribe(context.Background())
	fast := h.Subscribe(context.Background())
	defer slow.Close()
	defer fast.Close()

	for i := 0; i < 20; i++ {
		h.Publish(whale(strconv.Itoa(i)))
		m := <-fast.C()
		if m.Alert.ID != strconv.Itoa(i) {
			t.Fatalf("fast subscriber out of order: %s", m.Alert.ID)
		}
	}
	if fast.Dropped() != 0 {
		t.Fatalf("fast subscriber dropped %d", fast.Dropped())
	}
	if slow.Dropped() != 18 {
		t.Fatalf("expected slow subscriber to drop 18, got %d", slow.Dropped())
	}
}

func TestCloseDeregisters(t *testing.T) {
	h := New(2, zerolog.Nop())
	s := h.Subscribe(context.Background())
	if h.Len() != 1 {
		t.Fatalf("expected one subscriber, got %d", h.Len())
	}
	s.Close()
	s.Close()
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers after close, got %d", h.Len())
	}
	if _, ok := <-s.C(); ok {
		t.Fatalf("expected closed channel")
	}
	h.Publish(whale("after"))
}

func TestContextCancelDeregisters(t *testing.T) {
	h := New(2, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s := h.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-s.C():
		if ok {
			t.Fatalf("expected channel closed on cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed after cancel")
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Len())
	}
}

func TestStatusMessagesShareSubscription(t *testing.T) {
	h := New(4, zerolog.Nop())
	s := h.Subscribe(context.Background())
	defer s.Close()

	h.PublishStatus(market.StreamStatus{Stream: "aggTrade", State: market.Connecting, Attempts: 2})
	m := <-s.C()
	if m.Type != MessageStatus || m.Status.State != market.Connecting || m.Status.Attempts != 2 {
		t.Fatalf("unexpected status message %+v", m)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env struct {
		Type string `json:"type"`
		Data struct {
			Stream string `json:"stream"`
			State  string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "status" || env.Data.State != "connecting" || env.Data.Stream != "aggTrade" {
		t.Fatalf("unexpected envelope %s", raw)
	}

	var back Message
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if back.Type != MessageStatus || back.Status.State != market.Connecting {
		t.Fatalf("unexpected decoded message %+v", back)
	}
}

func TestDropsMatchLostMessages(t *testing.T) {
	h := New(2, zerolog.Nop())
	s := h.Subscribe(context.Background())

	const published = 5000
	received := make(chan int)
	go func() {
		n := 0
		for range s.C() {
			n++
		}
		received <- n
	}()
	for i := 0; i < published; i++ {
		h.Publish(whale(strconv.Itoa(i)))
	}
	s.Close()

	got := <-received
	if uint64(got)+s.Dropped() != published {
		t.Fatalf("received %d + dropped %d != published %d", got, s.Dropped(), published)
	}
}
