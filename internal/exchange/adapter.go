// Package exchange hosts upstream stream adapters. Each adapter owns a single
// connection and emits RawRecords; reconnect policy lives in the supervisor.
package exchange

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// ProviderStub emits deterministic synthetic records (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live data from Binance USD-M futures public websockets.
	ProviderBinance = "binance"
)

// StreamSpec is what an adapter subscribes to.
type StreamSpec struct {
	Type     StreamType
	Symbols  []string
	Endpoint string
}

// Adapter represents a single supervised upstream subscription.
type Adapter struct {
	provider     string
	spec         StreamSpec
	log          zerolog.Logger
	idleTimeout  time.Duration
	stubInterval time.Duration
	dialer       *websocket.Dialer
}

// Option configures Adapter construction parameters.
type Option func(*Adapter)

const (
	defaultIdleTimeout  = 30 * time.Second
	defaultStubInterval = 500 * time.Millisecond
	defaultEndpoint     = "wss://fstream.binance.com"
)

// WithIdleTimeout overrides how long the connection may stay silent before it is treated as lost.
func WithIdleTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.idleTimeout = d
		}
	}
}

// WithStubInterval overrides the emit cadence of the stub provider.
func WithStubInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.stubInterval = d
		}
	}
}

// WithDialer injects a websocket dialer (tests, proxies).
func WithDialer(d *websocket.Dialer) Option {
	return func(a *Adapter) {
		if d != nil {
			a.dialer = d
		}
	}
}

// NewAdapter constructs an adapter backed by the requested provider.
func NewAdapter(provider string, spec StreamSpec, log zerolog.Logger, opts ...Option) *Adapter {
	if provider == "" {
		provider = ProviderStub
	}
	spec.Symbols = normalizeSymbols(spec.Symbols)
	if spec.Endpoint == "" {
		spec.Endpoint = defaultEndpoint
	}
	spec.Endpoint = strings.TrimSuffix(spec.Endpoint, "/")
	a := &Adapter{
		provider:     strings.ToLower(provider),
		spec:         spec,
		log:          log.With().Str("stream", string(spec.Type)).Logger(),
		idleTimeout:  defaultIdleTimeout,
		stubInterval: defaultStubInterval,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name identifies the adapter in logs, metrics and stream status.
func (a *Adapter) Name() string { return string(a.spec.Type) }

// Spec returns the normalized stream specification.
func (a *Adapter) Spec() StreamSpec {
	spec := a.spec
	spec.Symbols = append([]string(nil), a.spec.Symbols...)
	return spec
}

// normalizeSymbols deduplicates and upper-cases symbols, sorted for determinism.
func normalizeSymbols(symbols []string) []string {
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for sym := range unique {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Run pushes records onto the provided channel until the context is canceled or
// the connection fails. Connection failures wrap market.ErrConnectionLost.
func (a *Adapter) Run(ctx context.Context, out chan<- RawRecord) error {
	return a.RunNotify(ctx, out, nil)
}

// RunNotify is Run plus a connected callback, invoked once the upstream
// connection is open and before any record is emitted. connected may be nil.
func (a *Adapter) RunNotify(ctx context.Context, out chan<- RawRecord, connected func()) error {
	if connected == nil {
		connected = func() {}
	}
	switch a.provider {
	case ProviderBinance:
		return a.runBinance(ctx, out, connected)
	default:
		return a.runStub(ctx, out, connected)
	}
}

func emit(ctx context.Context, out chan<- RawRecord, rec RawRecord) error {
	select {
	case out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
