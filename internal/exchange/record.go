package exchange

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// StreamType discriminates the upstream stream a record came from.
type StreamType string

const (
	StreamAggTrade   StreamType = "aggTrade"
	StreamForceOrder StreamType = "forceOrder"
	StreamMarkPrice  StreamType = "markPrice"
)

// wire event names ("e") for each stream
const (
	eventAggTrade   = "aggTrade"
	eventForceOrder = "forceOrder"
	eventMarkPrice  = "markPriceUpdate"
)

// ParseStreamType maps a configured stream name onto a StreamType.
func ParseStreamType(name string) (StreamType, error) {
	switch StreamType(name) {
	case StreamAggTrade, StreamForceOrder, StreamMarkPrice:
		return StreamType(name), nil
	default:
		return "", fmt.Errorf("unknown stream type %q", name)
	}
}

// RawRecord is a decoded upstream message. Exactly one frame is set for a known
// Stream; records with an unrecognised discriminant keep the body in Payload.
type RawRecord struct {
	Stream     StreamType
	AggTrade   *futures.WsAggTradeEvent
	ForceOrder *futures.WsLiquidationOrderEvent
	MarkPrice  *futures.WsMarkPriceEvent
	Payload    json.RawMessage
	ReceivedAt time.Time
}

type frameHeader struct {
	Event string `json:"e"`
}

// DecodeFrame turns one stream payload into a RawRecord, branching on the "e"
// discriminant. It only fails on malformed JSON.
func DecodeFrame(data []byte, receivedAt time.Time) (RawRecord, error) {
	var hdr frameHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return RawRecord{}, fmt.Errorf("decode frame header: %w", err)
	}
	rec := RawRecord{ReceivedAt: receivedAt}
	switch hdr.Event {
	case eventAggTrade:
		var ev futures.WsAggTradeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return RawRecord{}, fmt.Errorf("decode aggTrade: %w", err)
		}
		rec.Stream, rec.AggTrade = StreamAggTrade, &ev
	case eventForceOrder:
		var ev futures.WsLiquidationOrderEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return RawRecord{}, fmt.Errorf("decode forceOrder: %w", err)
		}
		rec.Stream, rec.ForceOrder = StreamForceOrder, &ev
	case eventMarkPrice:
		var ev futures.WsMarkPriceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return RawRecord{}, fmt.Errorf("decode markPrice: %w", err)
		}
		rec.Stream, rec.MarkPrice = StreamMarkPrice, &ev
	default:
		rec.Stream = StreamType(hdr.Event)
		rec.Payload = append(json.RawMessage(nil), data...)
	}
	return rec, nil
}

// Symbol returns the pair carried by the record, or "" when unknown.
func (r RawRecord) Symbol() string {
	switch {
	case r.AggTrade != nil:
		return r.AggTrade.Symbol
	case r.ForceOrder != nil:
		return r.ForceOrder.LiquidationOrder.Symbol
	case r.MarkPrice != nil:
		return r.MarkPrice.Symbol
	default:
		return ""
	}
}
