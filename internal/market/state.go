package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Counters are running totals since process start. They only ever grow.
type Counters struct {
	Liquidations uint64 `json:"liquidations"`
	Whales       uint64 `json:"whales"`
	MegaWhales   uint64 `json:"megaWhales"`
	Trivial      uint64 `json:"trivial"`
	Funding      uint64 `json:"funding"`
}

// SymbolState is the per-pair view handed out by the state store. Values returned
// from the store are copies; mutating them has no effect on the store.
type SymbolState struct {
	Symbol            string            `json:"symbol"`
	LastFundingRate   decimal.Decimal   `json:"lastFundingRate"`
	LastFundingAt     time.Time         `json:"lastFundingAt"`
	LastAnnualizedPct decimal.Decimal   `json:"lastAnnualizedPct"`
	FundingBand       FundingBand       `json:"fundingBand,omitempty"`
	RecentAlerts      []ClassifiedEvent `json:"recentAlerts"`
	Counters          Counters          `json:"counters"`
}

// HasFunding reports whether a funding update has been applied yet.
func (s SymbolState) HasFunding() bool { return !s.LastFundingAt.IsZero() }
