package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
	"github.com/Jamesd000/crypto-live-dashboard/internal/metrics"
)

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// streamNames lists the combined-stream topics for the adapter's spec.
func (a *Adapter) streamNames() []string {
	switch a.spec.Type {
	case StreamForceOrder:
		return []string{"!forceOrder@arr"}
	case StreamMarkPrice:
		names := make([]string, len(a.spec.Symbols))
		for i, sym := range a.spec.Symbols {
			names[i] = strings.ToLower(sym) + "@markPrice@1s"
		}
		return names
	default:
		names := make([]string, len(a.spec.Symbols))
		for i, sym := range a.spec.Symbols {
			names[i] = strings.ToLower(sym) + "@aggTrade"
		}
		return names
	}
}

func (a *Adapter) streamURL() string {
	return fmt.Sprintf("%s/stream?streams=%s", a.spec.Endpoint, strings.Join(a.streamNames(), "/"))
}

func (a *Adapter) runBinance(ctx context.Context, out chan<- RawRecord, connected func()) error {
	if a.spec.Type != StreamForceOrder && len(a.spec.Symbols) == 0 {
		return fmt.Errorf("binance %s stream requires at least one symbol", a.spec.Type)
	}

	url := a.streamURL()
	conn, _, err := a.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: dial %s: %w", market.ErrConnectionLost, a.spec.Type, err)
	}
	defer conn.Close()
	// unblocks ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	a.log.Info().Str("provider", ProviderBinance).Strs("symbols", a.spec.Symbols).Msg("connected upstream stream")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(a.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.idleTimeout))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go a.pingLoop(pingCtx, conn)
	connected()

	filter := make(map[string]struct{}, len(a.spec.Symbols))
	for _, sym := range a.spec.Symbols {
		filter[sym] = struct{}{}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read %s: %w", market.ErrConnectionLost, a.spec.Type, err)
		}
		receivedAt := time.Now()
		_ = conn.SetReadDeadline(receivedAt.Add(a.idleTimeout))

		rec, err := decodeBinanceMessage(message, receivedAt)
		if err != nil {
			metrics.FramesDropped.WithLabelValues(string(a.spec.Type)).Inc()
			a.log.Warn().Err(err).Int("bytes", len(message)).Msg("dropping undecodable frame")
			continue
		}
		if rec.Stream == StreamForceOrder && len(filter) > 0 {
			if _, ok := filter[strings.ToUpper(rec.Symbol())]; !ok {
				continue
			}
		}
		if err := emit(ctx, out, rec); err != nil {
			return err
		}
		metrics.RecordsTotal.WithLabelValues(string(a.spec.Type)).Inc()
	}
}

func (a *Adapter) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				a.log.Warn().Err(err).Msg("upstream ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// decodeBinanceMessage unwraps the combined-stream envelope when present.
func decodeBinanceMessage(message []byte, receivedAt time.Time) (RawRecord, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return RawRecord{}, fmt.Errorf("decode envelope: %w", err)
	}
	payload := []byte(env.Data)
	if env.Stream == "" || len(payload) == 0 {
		payload = message
	}
	rec, err := DecodeFrame(payload, receivedAt)
	if err != nil {
		return RawRecord{}, err
	}
	// some payloads omit "s"; the stream name still carries the pair
	if fallback := parseBinanceSymbol(env.Stream); fallback != "" {
		if rec.AggTrade != nil && rec.AggTrade.Symbol == "" {
			rec.AggTrade.Symbol = fallback
		}
		if rec.MarkPrice != nil && rec.MarkPrice.Symbol == "" {
			rec.MarkPrice.Symbol = fallback
		}
	}
	return rec, nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" || strings.HasPrefix(parts[0], "!") {
		return ""
	}
	return strings.ToUpper(parts[0])
}
