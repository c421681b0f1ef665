package exchange

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/Jamesd000/crypto-live-dashboard/internal/metrics"
)

// stub quantities at price 100 give notionals of 50, 15000, 100000 and 200,
// so one cycle crosses every trade bucket with the default thresholds.
var (
	stubTradeQty   = []string{"0.5", "150", "1000", "2"}
	stubLiqQty     = []string{"60", "3"}
	stubFundingPct = []string{"0.0001", "0.0002"}
)

func (a *Adapter) runStub(ctx context.Context, out chan<- RawRecord, connected func()) error {
	ticker := time.NewTicker(a.stubInterval)
	defer ticker.Stop()
	connected()

	symbols := a.spec.Symbols
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT"}
	}
	var seq int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			for _, sym := range symbols {
				rec := stubRecord(a.spec.Type, sym, seq, ts)
				seq++
				if err := emit(ctx, out, rec); err != nil {
					return err
				}
				metrics.RecordsTotal.WithLabelValues(string(a.spec.Type)).Inc()
			}
		}
	}
}

func stubRecord(stream StreamType, symbol string, seq int64, ts time.Time) RawRecord {
	ms := ts.UnixMilli()
	rec := RawRecord{Stream: stream, ReceivedAt: ts}
	switch stream {
	case StreamForceOrder:
		side := futures.SideTypeSell
		if seq%2 == 1 {
			side = futures.SideTypeBuy
		}
		qty := stubLiqQty[seq%int64(len(stubLiqQty))]
		rec.ForceOrder = &futures.WsLiquidationOrderEvent{
			Event: eventForceOrder,
			Time:  ms,
			LiquidationOrder: futures.WsLiquidationOrder{
				Symbol:               symbol,
				Side:                 side,
				OrigQuantity:         qty,
				Price:                "100",
				AvgPrice:             "100",
				AccumulatedFilledQty: qty,
				TradeTime:            ms,
			},
		}
	case StreamMarkPrice:
		rec.MarkPrice = &futures.WsMarkPriceEvent{
			Event:           eventMarkPrice,
			Time:            ms,
			Symbol:          symbol,
			MarkPrice:       "100",
			IndexPrice:      "100",
			FundingRate:     stubFundingPct[seq%int64(len(stubFundingPct))],
			NextFundingTime: ts.Add(8 * time.Hour).UnixMilli(),
		}
	default:
		rec.Stream = StreamAggTrade
		rec.AggTrade = &futures.WsAggTradeEvent{
			Event:            eventAggTrade,
			Time:             ms,
			Symbol:           symbol,
			AggregateTradeID: seq,
			Price:            "100",
			Quantity:         stubTradeQty[seq%int64(len(stubTradeQty))],
			TradeTime:        ms,
			Maker:            seq%2 == 1,
		}
	}
	return rec
}

