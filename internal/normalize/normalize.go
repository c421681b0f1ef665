// Package normalize converts adapter-specific raw records into market.Event values.
package normalize

import (
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/Jamesd000/crypto-live-dashboard/internal/exchange"
	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
)

// Normalize maps one RawRecord onto the unified event model. It never panics on
// partial records; every failure is a *market.NormalizationError.
func Normalize(rec exchange.RawRecord) (market.Event, error) {
	switch {
	case rec.Stream == exchange.StreamAggTrade && rec.AggTrade != nil:
		return fromAggTrade(rec.AggTrade, rec.ReceivedAt)
	case rec.Stream == exchange.StreamForceOrder && rec.ForceOrder != nil:
		return fromForceOrder(rec.ForceOrder, rec.ReceivedAt)
	case rec.Stream == exchange.StreamMarkPrice && rec.MarkPrice != nil:
		return fromMarkPrice(rec.MarkPrice, rec.ReceivedAt)
	default:
		return market.Event{}, market.NewNormalizationError(market.UnknownShape, string(rec.Stream), "no schema for discriminant", nil)
	}
}

func fromAggTrade(ev *futures.WsAggTradeEvent, receivedAt time.Time) (market.Event, error) {
	stream := string(exchange.StreamAggTrade)
	symbol := market.NormalizeSymbol(ev.Symbol)
	if symbol == "" {
		return market.Event{}, market.NewNormalizationError(market.MissingField, stream, "symbol", nil)
	}
	price, err := parseDecimal(stream, "price", ev.Price)
	if err != nil {
		return market.Event{}, err
	}
	qty, err := parseDecimal(stream, "quantity", ev.Quantity)
	if err != nil {
		return market.Event{}, err
	}
	// buyer is maker: the aggressor sold
	side := market.Buy
	if ev.Maker {
		side = market.Sell
	}
	return market.Event{
		Symbol:     symbol,
		Kind:       market.KindTrade,
		Price:      price,
		Quantity:   qty,
		Side:       side,
		Timestamp:  exchangeTime(ev.TradeTime, ev.Time),
		ReceivedAt: receivedAt,
	}, nil
}

func fromForceOrder(ev *futures.WsLiquidationOrderEvent, receivedAt time.Time) (market.Event, error) {
	stream := string(exchange.StreamForceOrder)
	order := ev.LiquidationOrder
	symbol := market.NormalizeSymbol(order.Symbol)
	if symbol == "" {
		return market.Event{}, market.NewNormalizationError(market.MissingField, stream, "symbol", nil)
	}
	var side market.Side
	switch order.Side {
	case futures.SideTypeBuy:
		side = market.Buy
	case futures.SideTypeSell:
		side = market.Sell
	default:
		return market.Event{}, market.NewNormalizationError(market.MissingField, stream, "side", nil)
	}
	rawPrice := order.Price
	if rawPrice == "" {
		rawPrice = order.AvgPrice
	}
	price, err := parseDecimal(stream, "price", rawPrice)
	if err != nil {
		return market.Event{}, err
	}
	// filled quantity is what actually hit the book; the order size is only used
	// when the exchange omits it
	rawQty := order.AccumulatedFilledQty
	if rawQty == "" {
		rawQty = order.OrigQuantity
	}
	qty, err := parseDecimal(stream, "quantity", rawQty)
	if err != nil {
		return market.Event{}, err
	}
	return market.Event{
		Symbol:     symbol,
		Kind:       market.KindLiquidation,
		Price:      price,
		Quantity:   qty,
		Side:       side,
		Timestamp:  exchangeTime(order.TradeTime, ev.Time),
		ReceivedAt: receivedAt,
	}, nil
}

func fromMarkPrice(ev *futures.WsMarkPriceEvent, receivedAt time.Time) (market.Event, error) {
	stream := string(exchange.StreamMarkPrice)
	symbol := market.NormalizeSymbol(ev.Symbol)
	if symbol == "" {
		return market.Event{}, market.NewNormalizationError(market.MissingField, stream, "symbol", nil)
	}
	rate, err := parseDecimal(stream, "funding rate", ev.FundingRate)
	if err != nil {
		return market.Event{}, err
	}
	mark := decimal.Zero
	if ev.MarkPrice != "" {
		if mark, err = parseDecimal(stream, "mark price", ev.MarkPrice); err != nil {
			return market.Event{}, err
		}
	}
	return market.Event{
		Symbol:      symbol,
		Kind:        market.KindFunding,
		Price:       mark,
		Quantity:    decimal.Zero,
		FundingRate: &rate,
		Timestamp:   exchangeTime(ev.Time, 0),
		ReceivedAt:  receivedAt,
	}, nil
}

func parseDecimal(stream, field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, market.NewNormalizationError(market.MissingField, stream, field, nil)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, market.NewNormalizationError(market.BadNumber, stream, field, err)
	}
	return d, nil
}

func exchangeTime(primary, fallback int64) time.Time {
	switch {
	case primary > 0:
		return time.UnixMilli(primary)
	case fallback > 0:
		return time.UnixMilli(fallback)
	default:
		return time.Time{}
	}
}
