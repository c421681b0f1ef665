// Package market standardizes payloads shared between ingestion, classification, state and the dashboard feed.
package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind enumerates the normalized event shapes.
type Kind string

const (
	// KindFunding is a mark-price/funding-rate update.
	KindFunding Kind = "FUNDING_UPDATE"
	// KindLiquidation is an exchange forced order.
	KindLiquidation Kind = "LIQUIDATION"
	// KindTrade is an aggregated public trade.
	KindTrade Kind = "TRADE"
)

// Side enumerates aggressor directions.
type Side string

const (
	// Buy indicates the taker bought.
	Buy Side = "BUY"
	// Sell indicates the taker sold.
	Sell Side = "SELL"
)

// Event is the unified record produced by the normalizer. Funding updates carry
// the mark price in Price and a zero Quantity.
type Event struct {
	Symbol      string           `json:"symbol"`
	Kind        Kind             `json:"kind"`
	Price       decimal.Decimal  `json:"price"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Side        Side             `json:"side,omitempty"`
	FundingRate *decimal.Decimal `json:"fundingRate,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	ReceivedAt  time.Time        `json:"receivedAt"`
}

// NormalizeSymbol upper-cases an exchange-native pair identifier.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// DisplaySymbol strips the USDT quote for compact rendering (BTCUSDT -> BTC).
func DisplaySymbol(symbol string) string {
	return strings.TrimSuffix(NormalizeSymbol(symbol), "USDT")
}
