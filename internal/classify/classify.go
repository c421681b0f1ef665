// Package classify tags normalized events with an alert category using notional thresholds.
package classify

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
	"github.com/Jamesd000/crypto-live-dashboard/internal/metrics"
)

// Thresholds are the notional cut-offs. Intervals are closed-open: a notional
// equal to a threshold lands in the higher bucket.
type Thresholds struct {
	Whale            decimal.Decimal
	MegaWhale        decimal.Decimal
	LiquidationFloor decimal.Decimal
}

// NewThresholds builds and validates thresholds from configuration values.
func NewThresholds(whale, megaWhale, liquidationFloor float64) (Thresholds, error) {
	t := Thresholds{
		Whale:            decimal.NewFromFloat(whale),
		MegaWhale:        decimal.NewFromFloat(megaWhale),
		LiquidationFloor: decimal.NewFromFloat(liquidationFloor),
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// Validate rejects thresholds that would make classification ambiguous.
func (t Thresholds) Validate() error {
	if !t.Whale.IsPositive() {
		return market.NewConfigurationError("whaleNotional", "must be positive, got %s", t.Whale)
	}
	if t.MegaWhale.LessThanOrEqual(t.Whale) {
		return market.NewConfigurationError("megaWhaleNotional", "must be greater than whaleNotional (%s <= %s)", t.MegaWhale, t.Whale)
	}
	if t.LiquidationFloor.IsNegative() {
		return market.NewConfigurationError("liquidationFloor", "must not be negative, got %s", t.LiquidationFloor)
	}
	return nil
}

var (
	hundred      = decimal.NewFromInt(100)
	fundingDays  = decimal.NewFromInt(3 * 365)
	hugeNotional = decimal.NewFromInt(500_000)
	megaNotional = decimal.NewFromInt(1_000_000)

	bandExtreme  = decimal.NewFromInt(50)
	bandHigh     = decimal.NewFromInt(30)
	bandPositive = decimal.NewFromInt(5)
	bandNegative = decimal.NewFromInt(-10)
)

// Classify is the pure classification rule. The returned event has no ID.
func Classify(ev market.Event, t Thresholds) market.ClassifiedEvent {
	notional := ev.Price.Mul(ev.Quantity)
	var category market.Category
	switch ev.Kind {
	case market.KindFunding:
		category = market.CategoryFunding
	case market.KindLiquidation:
		category = market.CategoryLiquidation
		if t.LiquidationFloor.IsPositive() && notional.LessThan(t.LiquidationFloor) {
			category = market.CategoryTrivial
		}
	default:
		switch {
		case notional.GreaterThanOrEqual(t.MegaWhale):
			category = market.CategoryMegaWhale
		case notional.GreaterThanOrEqual(t.Whale):
			category = market.CategoryWhale
		default:
			category = market.CategoryTrivial
		}
	}

	ce := market.NewClassifiedEvent(ev, "", category)
	switch category {
	case market.CategoryWhale, market.CategoryMegaWhale:
		ce.Tier = SizeTier(ce.Notional())
	case market.CategoryFunding:
		if ev.FundingRate != nil {
			ce.Funding = FundingFigures(*ev.FundingRate)
		}
	}
	if ev.Kind == market.KindLiquidation {
		ce.LiquidatedSide = LiquidatedSide(ev.Side)
	}
	return ce
}

// SizeTier labels a large trade for display: BIG, HUGE (>= 500k) or MEGA (>= 1M).
func SizeTier(notional decimal.Decimal) string {
	switch {
	case notional.GreaterThanOrEqual(megaNotional):
		return "MEGA"
	case notional.GreaterThanOrEqual(hugeNotional):
		return "HUGE"
	default:
		return "BIG"
	}
}

// LiquidatedSide names the position that was closed: a forced sell closes a long.
func LiquidatedSide(side market.Side) string {
	switch side {
	case market.Sell:
		return "LONG"
	case market.Buy:
		return "SHORT"
	default:
		return ""
	}
}

// FundingFigures derives the percentage, annualized percentage (three fundings a
// day) and display band from a raw funding rate.
func FundingFigures(rate decimal.Decimal) *market.FundingView {
	pct := rate.Mul(hundred)
	annual := pct.Mul(fundingDays)
	return &market.FundingView{RatePct: pct, AnnualizedPct: annual, Band: Band(annual)}
}

// Band buckets an annualized funding percentage.
func Band(annualizedPct decimal.Decimal) market.FundingBand {
	switch {
	case annualizedPct.GreaterThan(bandExtreme):
		return market.FundingExtreme
	case annualizedPct.GreaterThan(bandHigh):
		return market.FundingHigh
	case annualizedPct.GreaterThan(bandPositive):
		return market.FundingPositive
	case annualizedPct.LessThan(bandNegative):
		return market.FundingNegative
	default:
		return market.FundingNormal
	}
}

// Classifier applies Thresholds to a stream of events and counts the trivial
// events it keeps away from the hub.
type Classifier struct {
	thresholds Thresholds
	suppressed atomic.Uint64
	newID      func() string
}

// New constructs a Classifier; invalid thresholds yield a *market.ConfigurationError.
func New(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{thresholds: t, newID: uuid.NewString}, nil
}

// Thresholds returns the active thresholds.
func (c *Classifier) Thresholds() Thresholds { return c.thresholds }

// Process classifies ev and reports whether it should be forwarded to the hub.
// Trivial events are still returned so the state store can count them.
func (c *Classifier) Process(ev market.Event) (market.ClassifiedEvent, bool) {
	ce := Classify(ev, c.thresholds)
	ce.ID = c.newID()
	metrics.EventsClassified.WithLabelValues(string(ce.Category)).Inc()
	if ce.Category == market.CategoryTrivial {
		c.suppressed.Add(1)
		metrics.EventsSuppressed.Inc()
		return ce, false
	}
	return ce, true
}

// Suppressed is the number of trivial events withheld from the hub.
func (c *Classifier) Suppressed() uint64 { return c.suppressed.Load() }
