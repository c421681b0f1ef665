package market

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Category is the alert tag attached by the classifier.
type Category string

const (
	CategoryFunding     Category = "FUNDING"
	CategoryLiquidation Category = "LIQUIDATION"
	CategoryWhale       Category = "WHALE"
	CategoryMegaWhale   Category = "MEGA_WHALE"
	CategoryTrivial     Category = "TRIVIAL"
)

// Alerting reports whether the category lands in the recent-alerts ring.
func (c Category) Alerting() bool {
	switch c {
	case CategoryLiquidation, CategoryWhale, CategoryMegaWhale:
		return true
	default:
		return false
	}
}

// FundingBand buckets an annualized funding rate for display.
type FundingBand string

const (
	FundingExtreme  FundingBand = "extreme"
	FundingHigh     FundingBand = "high"
	FundingPositive FundingBand = "positive"
	FundingNegative FundingBand = "negative"
	FundingNormal   FundingBand = "normal"
)

// FundingView holds the derived funding figures shown on the dashboard.
type FundingView struct {
	RatePct       decimal.Decimal `json:"ratePct"`
	AnnualizedPct decimal.Decimal `json:"annualizedPct"`
	Band          FundingBand     `json:"band"`
}

// ClassifiedEvent is an Event plus its category and derived fields. The notional
// is fixed at construction and only exposed through Notional.
type ClassifiedEvent struct {
	Event
	ID             string       `json:"id"`
	Category       Category     `json:"category"`
	Tier           string       `json:"tier,omitempty"`
	LiquidatedSide string       `json:"liquidatedSide,omitempty"`
	Funding        *FundingView `json:"funding,omitempty"`

	notional decimal.Decimal
}

// NewClassifiedEvent computes the notional (price x quantity) once.
func NewClassifiedEvent(ev Event, id string, category Category) ClassifiedEvent {
	return ClassifiedEvent{
		Event:    ev,
		ID:       id,
		Category: category,
		notional: ev.Price.Mul(ev.Quantity),
	}
}

// Notional returns price x quantity as computed at classification time.
func (c ClassifiedEvent) Notional() decimal.Decimal { return c.notional }

// MarshalJSON adds the notional to the wire form.
func (c ClassifiedEvent) MarshalJSON() ([]byte, error) {
	type plain ClassifiedEvent
	return json.Marshal(struct {
		plain
		Notional decimal.Decimal `json:"notional"`
	}{plain: plain(c), Notional: c.notional})
}

// UnmarshalJSON restores the notional from the wire form (used by feed consumers).
func (c *ClassifiedEvent) UnmarshalJSON(data []byte) error {
	type plain ClassifiedEvent
	var aux struct {
		plain
		Notional decimal.Decimal `json:"notional"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = ClassifiedEvent(aux.plain)
	c.notional = aux.Notional
	return nil
}
