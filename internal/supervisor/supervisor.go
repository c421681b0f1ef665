// Package supervisor keeps every upstream adapter connected and drives the
// normalize -> classify -> store -> hub pipeline.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/Jamesd000/crypto-live-dashboard/internal/classify"
	"github.com/Jamesd000/crypto-live-dashboard/internal/exchange"
	"github.com/Jamesd000/crypto-live-dashboard/internal/hub"
	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
	"github.com/Jamesd000/crypto-live-dashboard/internal/metrics"
	"github.com/Jamesd000/crypto-live-dashboard/internal/normalize"
	"github.com/Jamesd000/crypto-live-dashboard/internal/state"
)

// Source is one supervised upstream subscription. Run returns when the
// connection is lost or ctx is canceled; it never retries on its own.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- exchange.RawRecord) error
}

// ConnectNotifier is a Source that can report an open connection before its first
// record, so quiet streams still count as Running. Sources without it enter
// Running on their first record.
type ConnectNotifier interface {
	RunNotify(ctx context.Context, out chan<- exchange.RawRecord, connected func()) error
}

const (
	defaultBase          = time.Second
	defaultCap           = 30 * time.Second
	defaultResetAfter    = time.Minute
	defaultRecordsBuffer = 4096
)

// Supervisor owns the adapters, the records channel and the single pipeline
// goroutine that writes to the state store.
type Supervisor struct {
	sources    []Source
	classifier *classify.Classifier
	store      *state.Store
	hub        *hub.Hub
	log        zerolog.Logger

	base       time.Duration
	ceiling    time.Duration
	resetAfter time.Duration
	buffer     int

	mu       sync.RWMutex
	statuses map[string]market.StreamStatus
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(s *Supervisor) {
		s.base = base
		s.ceiling = ceiling
	}
}

// WithResetAfter sets how long a connection must stay up before the backoff restarts from base.
func WithResetAfter(d time.Duration) Option {
	return func(s *Supervisor) { s.resetAfter = d }
}

// WithRecordsBuffer sets the adapter -> pipeline channel capacity.
func WithRecordsBuffer(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// New validates the wiring and returns a supervisor ready to Run. Invalid
// settings yield a *market.ConfigurationError.
func New(sources []Source, classifier *classify.Classifier, store *state.Store, h *hub.Hub, log zerolog.Logger, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		sources:    sources,
		classifier: classifier,
		store:      store,
		hub:        h,
		log:        log.With().Str("component", "supervisor").Logger(),
		base:       defaultBase,
		ceiling:    defaultCap,
		resetAfter: defaultResetAfter,
		buffer:     defaultRecordsBuffer,
		statuses:   make(map[string]market.StreamStatus, len(sources)),
	}
	for _, opt := range opts {
		opt(s)
	}
	switch {
	case len(sources) == 0:
		return nil, market.NewConfigurationError("exchange.streams", "at least one stream is required")
	case classifier == nil || store == nil || h == nil:
		return nil, market.NewConfigurationError("supervisor", "classifier, store and hub are required")
	case s.base <= 0:
		return nil, market.NewConfigurationError("reconnect.base_ms", "must be positive, got %s", s.base)
	case s.ceiling < s.base:
		return nil, market.NewConfigurationError("reconnect.cap_ms", "must be >= base (%s), got %s", s.base, s.ceiling)
	}
	now := time.Now()
	for _, src := range sources {
		if _, dup := s.statuses[src.Name()]; dup {
			return nil, market.NewConfigurationError("exchange.streams", "duplicate stream %q", src.Name())
		}
		s.statuses[src.Name()] = market.StreamStatus{Stream: src.Name(), State: market.Stopped, Since: now}
	}
	return s, nil
}

// Run starts every adapter and processes records until ctx is canceled. It
// waits for the adapters to exit before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	records := make(chan exchange.RawRecord, s.buffer)

	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			s.supervise(ctx, src, records)
		}(src)
	}
	s.log.Info().Int("streams", len(s.sources)).Msg("supervisor started")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			for _, src := range s.sources {
				s.setState(src.Name(), market.Stopped, 0, nil)
			}
			s.log.Info().Msg("supervisor stopped")
			return nil
		case rec := <-records:
			s.process(rec)
		}
	}
}

// process is only ever called from the Run goroutine, which makes it the
// store's single writer.
func (s *Supervisor) process(rec exchange.RawRecord) {
	ev, err := normalize.Normalize(rec)
	if err != nil {
		var nerr *market.NormalizationError
		if errors.As(err, &nerr) {
			metrics.NormalizeErrors.WithLabelValues(nerr.Reason.String()).Inc()
		}
		s.log.Debug().Err(err).Str("stream", string(rec.Stream)).Msg("record dropped")
		return
	}
	ce, forward := s.classifier.Process(ev)
	s.store.Apply(ce)
	if forward {
		s.hub.Publish(ce)
	}
}

func (s *Supervisor) supervise(ctx context.Context, src Source, out chan<- exchange.RawRecord) {
	name := src.Name()
	log := s.log.With().Str("stream", name).Logger()
	b := newBackoff(s.base, s.ceiling)
	attempts := 0

	for {
		s.setState(name, market.Connecting, attempts, nil)
		connectedAt, err := s.attempt(ctx, src, out)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("%w: stream ended", market.ErrConnectionLost)
		}
		if !connectedAt.IsZero() && time.Since(connectedAt) >= s.resetAfter {
			b.Reset()
			attempts = 0
		}
		attempts++
		metrics.AdapterRestarts.WithLabelValues(name).Inc()
		s.setState(name, market.Failed, attempts, err)

		delay := b.Duration()
		log.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", delay).Msg("adapter failed")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// attempt runs one connection of src, relaying its records to out. The
// returned time is when the connection was reported open (or, for sources that
// cannot report it, when the first record arrived), zero if neither happened.
func (s *Supervisor) attempt(ctx context.Context, src Source, out chan<- exchange.RawRecord) (time.Time, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	relay := make(chan exchange.RawRecord)
	up := make(chan struct{}, 1)
	errc := make(chan error, 1)
	go func() {
		if n, ok := src.(ConnectNotifier); ok {
			errc <- n.RunNotify(attemptCtx, relay, func() {
				select {
				case up <- struct{}{}:
				default:
				}
			})
			return
		}
		errc <- src.Run(attemptCtx, relay)
	}()

	var connectedAt time.Time
	running := func() {
		if connectedAt.IsZero() {
			connectedAt = time.Now()
			s.setState(src.Name(), market.Running, 0, nil)
		}
	}
	for {
		select {
		case err := <-errc:
			return connectedAt, err
		case <-up:
			running()
		case rec := <-relay:
			running()
			select {
			case out <- rec:
			case <-ctx.Done():
				cancel()
				return connectedAt, <-errc
			}
		}
	}
}

func (s *Supervisor) setState(name string, st market.StreamState, attempts int, err error) {
	s.mu.Lock()
	cur := s.statuses[name]
	if cur.State == st && st != market.Failed {
		s.mu.Unlock()
		return
	}
	cur.State = st
	cur.Since = time.Now()
	switch {
	case st == market.Running:
		cur.LastError = ""
	case err != nil:
		cur.LastError = err.Error()
	}
	if st != market.Running {
		cur.Attempts = attempts
	}
	s.statuses[name] = cur
	s.mu.Unlock()

	metrics.AdapterState.WithLabelValues(name).Set(float64(st))
	s.hub.PublishStatus(cur)
}

// Statuses returns every stream's current status, sorted by name.
func (s *Supervisor) Statuses() []market.StreamStatus {
	s.mu.RLock()
	out := make([]market.StreamStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out
}

func newBackoff(base, ceiling time.Duration) *backoff.Backoff {
	return &backoff.Backoff{Min: base, Max: ceiling, Factor: 2, Jitter: true}
}
