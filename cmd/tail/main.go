package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/Jamesd000/crypto-live-dashboard/internal/feed"
	"github.com/Jamesd000/crypto-live-dashboard/internal/hub"
	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
	"github.com/Jamesd000/crypto-live-dashboard/internal/notify"
	"github.com/Jamesd000/crypto-live-dashboard/internal/util"
)

func main() {
	url := flag.String("url", "ws://localhost:8000/ws", "dashboard feed websocket")
	level := flag.String("level", "info", "log level")
	flag.Parse()

	log := util.NewConsoleLogger(*level, os.Stdout)
	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
	for {
		err := tail(ctx, *url, log, b.Reset)
		if ctx.Err() != nil {
			return
		}
		delay := b.Duration()
		log.Warn().Err(err).Dur("retry_in", delay).Msg("feed disconnected")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// tail streams one feed connection. connected is called once the initial
// snapshot has arrived.
func tail(ctx context.Context, url string, log zerolog.Logger, connected func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var initial feed.InitialData
	if err := conn.ReadJSON(&initial); err != nil {
		return fmt.Errorf("read initial data: %w", err)
	}
	connected()
	log.Info().Int("symbols", len(initial.Symbols)).Str("url", url).Msg("connected")
	for _, st := range initial.Symbols {
		printSymbol(log, st)
	}
	for _, st := range initial.Streams {
		printStatus(log, st)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var m hub.Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Debug().Err(err).Msg("skip message")
			continue
		}
		switch m.Type {
		case hub.MessageAlert:
			printAlert(log, m.Alert)
		case hub.MessageStatus:
			printStatus(log, m.Status)
		}
	}
}

func printSymbol(log zerolog.Logger, st market.SymbolState) {
	ev := log.Info().Str("symbol", market.DisplaySymbol(st.Symbol)).
		Uint64("liq", st.Counters.Liquidations).
		Uint64("whales", st.Counters.Whales).
		Uint64("mega", st.Counters.MegaWhales)
	if st.HasFunding() {
		ev = ev.Str("funding_apr", st.LastAnnualizedPct.StringFixed(1)+"%").Str("band", string(st.FundingBand))
	}
	ev.Msg("state")
}

func printAlert(log zerolog.Logger, ce market.ClassifiedEvent) {
	if ce.Category == market.CategoryFunding {
		if ce.Funding != nil {
			log.Debug().Str("symbol", market.DisplaySymbol(ce.Symbol)).
				Str("rate", ce.Funding.RatePct.StringFixed(3)+"%").
				Str("apr", ce.Funding.AnnualizedPct.StringFixed(1)+"%").
				Msg("funding")
		}
		return
	}
	ev := log.Info().
		Str("symbol", market.DisplaySymbol(ce.Symbol)).
		Str("size", notify.FormatUSD(ce.Notional())).
		Str("price", ce.Price.StringFixed(2))
	switch ce.Category {
	case market.CategoryLiquidation:
		ev.Str("liquidated", ce.LiquidatedSide).Msg("LIQUIDATION")
	default:
		ev.Str("side", string(ce.Side)).Str("tier", ce.Tier).Msg(string(ce.Category))
	}
}

func printStatus(log zerolog.Logger, st market.StreamStatus) {
	ev := log.Info()
	if st.State != market.Running {
		ev = log.Warn()
	}
	ev.Str("stream", st.Stream).Str("state", st.State.String()).Int("attempts", st.Attempts).Str("last_error", st.LastError).Msg("stream")
}
