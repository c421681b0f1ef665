package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/Jamesd000/crypto-live-dashboard/internal/exchange"
	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
)

func TestNormalizeAggTrade(t *testing.T) {
	now := time.Now()
	rec := exchange.RawRecord{
		Stream:     exchange.StreamAggTrade,
		AggTrade:   &futures.WsAggTradeEvent{Symbol: "btcusdt", Price: "100.10", Quantity: "150", TradeTime: 1700000000000, Maker: true},
		ReceivedAt: now,
	}
	ev, err := Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if ev.Symbol != "BTCUSDT" || ev.Kind != market.KindTrade || ev.Side != market.Sell {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.Price.Equal(decimal.RequireFromString("100.1")) || !ev.Quantity.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected numerics %s x %s", ev.Price, ev.Quantity)
	}
	if ev.Timestamp.UnixMilli() != 1700000000000 || !ev.ReceivedAt.Equal(now) {
		t.Fatalf("unexpected times %s %s", ev.Timestamp, ev.ReceivedAt)
	}
	if ev.FundingRate != nil {
		t.Fatalf("trade must not carry a funding rate")
	}
}

func TestNormalizeForceOrderPrefersFilledQuantity(t *testing.T) {
	rec := exchange.RawRecord{
		Stream: exchange.StreamForceOrder,
		ForceOrder: &futures.WsLiquidationOrderEvent{Time: 5, LiquidationOrder: futures.WsLiquidationOrder{
			Symbol: "ETHUSDT", Side: futures.SideTypeSell, OrigQuantity: "3", AccumulatedFilledQty: "2", Price: "2500",
		}},
	}
	ev, err := Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if ev.Kind != market.KindLiquidation || ev.Side != market.Sell || !ev.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Timestamp.UnixMilli() != 5 {
		t.Fatalf("expected event time fallback, got %d", ev.Timestamp.UnixMilli())
	}

	rec.ForceOrder.LiquidationOrder.AccumulatedFilledQty = ""
	ev, err = Normalize(rec)
	if err != nil || !ev.Quantity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected original quantity fallback, got %+v %v", ev, err)
	}

	rec.ForceOrder.LiquidationOrder.AccumulatedFilledQty = "0"
	ev, err = Normalize(rec)
	if err != nil || !ev.Quantity.IsZero() {
		t.Fatalf("unfilled liquidation must keep zero quantity, got %+v %v", ev, err)
	}
}

func TestNormalizeMarkPrice(t *testing.T) {
	rec := exchange.RawRecord{
		Stream:    exchange.StreamMarkPrice,
		MarkPrice: &futures.WsMarkPriceEvent{Symbol: "BTCUSDT", MarkPrice: "65000.5", FundingRate: "0.00010000", Time: 1700000000000},
	}
	ev, err := Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if ev.Kind != market.KindFunding || ev.FundingRate == nil || !ev.FundingRate.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("unexpected funding event %+v", ev)
	}
	if ev.Side != "" || !ev.Quantity.IsZero() {
		t.Fatalf("funding update must not carry side or quantity: %+v", ev)
	}
}

func TestNormalizeErrors(t *testing.T) {
	cases := []struct {
		name   string
		rec    exchange.RawRecord
		reason market.NormalizationReason
	}{
		{"unknown discriminant", exchange.RawRecord{Stream: "kline", Payload: []byte(`{}`)}, market.UnknownShape},
		{"known stream without frame", exchange.RawRecord{Stream: exchange.StreamAggTrade}, market.UnknownShape},
		{"mismatched frame", exchange.RawRecord{Stream: exchange.StreamMarkPrice, AggTrade: &futures.WsAggTradeEvent{}}, market.UnknownShape},
		{"bad price", exchange.RawRecord{Stream: exchange.StreamAggTrade, AggTrade: &futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "abc", Quantity: "1"}}, market.BadNumber},
		{"missing symbol", exchange.RawRecord{Stream: exchange.StreamAggTrade, AggTrade: &futures.WsAggTradeEvent{Price: "1", Quantity: "1"}}, market.MissingField},
		{"missing rate", exchange.RawRecord{Stream: exchange.StreamMarkPrice, MarkPrice: &futures.WsMarkPriceEvent{Symbol: "BTCUSDT"}}, market.MissingField},
		{"unknown side", exchange.RawRecord{Stream: exchange.StreamForceOrder, ForceOrder: &futures.WsLiquidationOrderEvent{
			LiquidationOrder: futures.WsLiquidationOrder{Symbol: "BTCUSDT", Price: "1", OrigQuantity: "1"},
		}}, market.MissingField},
	}
	for _, tc := range cases {
		_, err := Normalize(tc.rec)
		var nerr *market.NormalizationError
		if !errors.As(err, &nerr) {
			t.Fatalf("%s: expected NormalizationError, got %v", tc.name, err)
		}
		if nerr.Reason != tc.reason {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.reason, nerr.Reason)
		}
	}
}

func TestNormalizeKeepsDecimalPrecision(t *testing.T) {
	rec := exchange.RawRecord{
		Stream:   exchange.StreamAggTrade,
		AggTrade: &futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "0.1", Quantity: "150000"},
	}
	ev, err := Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if !ev.Price.Mul(ev.Quantity).Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("expected exact notional, got %s", ev.Price.Mul(ev.Quantity))
	}
}
