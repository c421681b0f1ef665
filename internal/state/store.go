// Package state keeps the bounded, in-memory per-symbol view the dashboard hydrates from.
package state

import (
	"sort"
	"sync"

	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
)

// DefaultCapacity is the recent-alerts ring size used when none is configured.
const DefaultCapacity = 200

type symbolEntry struct {
	mu     sync.RWMutex
	state  market.SymbolState
	alerts ring
}

// Store owns every SymbolState. Apply must be called from a single goroutine;
// Snapshot may be called concurrently from anywhere.
type Store struct {
	mu       sync.RWMutex
	capacity int
	symbols  map[string]*symbolEntry
}

// New creates an empty store whose per-symbol rings hold capacity alerts.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, symbols: make(map[string]*symbolEntry)}
}

// Capacity is the per-symbol recent-alerts bound.
func (s *Store) Capacity() int { return s.capacity }

func (s *Store) entry(symbol string) *symbolEntry {
	s.mu.RLock()
	e, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.symbols[symbol]; ok {
		return e
	}
	e = &symbolEntry{state: market.SymbolState{Symbol: symbol}, alerts: newRing(s.capacity)}
	s.symbols[symbol] = e
	return e
}

// Apply folds one classified event into its symbol's state. Replays are not
// deduplicated: applying the same event twice counts it twice.
func (s *Store) Apply(ce market.ClassifiedEvent) {
	e := s.entry(market.NormalizeSymbol(ce.Symbol))
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ce.Category {
	case market.CategoryFunding:
		if ce.FundingRate != nil {
			e.state.LastFundingRate = *ce.FundingRate
		}
		e.state.LastFundingAt = ce.Timestamp
		if e.state.LastFundingAt.IsZero() {
			e.state.LastFundingAt = ce.ReceivedAt
		}
		if ce.Funding != nil {
			e.state.LastAnnualizedPct = ce.Funding.AnnualizedPct
			e.state.FundingBand = ce.Funding.Band
		}
		e.state.Counters.Funding++
	case market.CategoryLiquidation:
		e.alerts.push(ce)
		e.state.Counters.Liquidations++
	case market.CategoryWhale:
		e.alerts.push(ce)
		e.state.Counters.Whales++
	case market.CategoryMegaWhale:
		e.alerts.push(ce)
		e.state.Counters.MegaWhales++
	case market.CategoryTrivial:
		e.state.Counters.Trivial++
	}
}

// Snapshot returns a copy of one symbol's state.
func (s *Store) Snapshot(symbol string) (market.SymbolState, bool) {
	s.mu.RLock()
	e, ok := s.symbols[market.NormalizeSymbol(symbol)]
	s.mu.RUnlock()
	if !ok {
		return market.SymbolState{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.state
	out.RecentAlerts = e.alerts.items()
	return out, true
}

// Symbols lists every symbol observed so far, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// SnapshotAll copies every symbol's state for initial dashboard hydration.
func (s *Store) SnapshotAll() map[string]market.SymbolState {
	symbols := s.Symbols()
	out := make(map[string]market.SymbolState, len(symbols))
	for _, sym := range symbols {
		if st, ok := s.Snapshot(sym); ok {
			out[sym] = st
		}
	}
	return out
}
