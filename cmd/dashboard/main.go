package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Jamesd000/crypto-live-dashboard/internal/classify"
	"github.com/Jamesd000/crypto-live-dashboard/internal/config"
	"github.com/Jamesd000/crypto-live-dashboard/internal/exchange"
	"github.com/Jamesd000/crypto-live-dashboard/internal/feed"
	"github.com/Jamesd000/crypto-live-dashboard/internal/hub"
	"github.com/Jamesd000/crypto-live-dashboard/internal/metrics"
	"github.com/Jamesd000/crypto-live-dashboard/internal/notify"
	"github.com/Jamesd000/crypto-live-dashboard/internal/state"
	"github.com/Jamesd000/crypto-live-dashboard/internal/supervisor"
	"github.com/Jamesd000/crypto-live-dashboard/internal/util"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML config")
	initConfig := flag.Bool("init", false, "write the default config to -config and exit")
	flag.Parse()

	if *initConfig {
		cfg := config.Default()
		if err := config.Save(*configPath, &cfg); err != nil {
			util.NewLogger("info").Fatal().Err(err).Msg("write default config")
		}
		util.NewLogger("info").Info().Str("path", *configPath).Msg("default config written")
		return
	}

	_ = godotenv.Load() // best-effort

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.NewLogger("info").Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	cfg.ApplyEnv(os.Getenv)
	log := util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	thresholds, err := classify.NewThresholds(cfg.Thresholds.WhaleNotional, cfg.Thresholds.MegaWhaleNotional, cfg.Thresholds.LiquidationFloor)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid thresholds")
	}
	classifier, err := classify.New(thresholds)
	if err != nil {
		log.Fatal().Err(err).Msg("classifier")
	}

	sources, err := buildSources(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build adapters")
	}

	store := state.New(cfg.State.RecentAlertsCapacity)
	fanout := hub.New(cfg.Feed.SubscriberBuffer, log)
	sup, err := supervisor.New(sources, classifier, store, fanout, log,
		supervisor.WithBackoff(cfg.Reconnect.Base(), cfg.Reconnect.Cap()),
		supervisor.WithResetAfter(cfg.Reconnect.ResetAfter()),
		supervisor.WithRecordsBuffer(cfg.Feed.RecordsBuffer),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("supervisor")
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelay())
		if err != nil {
			log.Error().Err(err).Msg("telegram disabled")
		} else {
			notifier := notify.New(tg, cfg.Telegram.MinLiquidationUSD, log)
			sub := fanout.Subscribe(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				notifier.Run(ctx, sub)
			}()
			log.Info().Msg("telegram notifications enabled")
		}
	}

	server := feed.NewServer(store, fanout, sup, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(ctx, cfg.App.ListenAddr); err != nil {
			log.Error().Err(err).Msg("feed server stopped")
			cancel()
		}
	}()

	log.Info().
		Str("provider", cfg.Exchange.Provider).
		Strs("symbols", cfg.Exchange.Symbols).
		Strs("streams", cfg.Exchange.Streams).
		Msg("dashboard engine started")
	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("supervisor stopped")
	}
	cancel()
	wg.Wait()
	log.Info().Uint64("suppressed", classifier.Suppressed()).Msg("shutting down")
}

func buildSources(cfg *config.Config, log zerolog.Logger) ([]supervisor.Source, error) {
	adapterLog := util.Component(log, "adapter")
	sources := make([]supervisor.Source, 0, len(cfg.Exchange.Streams))
	for _, name := range cfg.Exchange.Streams {
		st, err := exchange.ParseStreamType(name)
		if err != nil {
			return nil, err
		}
		spec := exchange.StreamSpec{Type: st, Symbols: cfg.Exchange.Symbols, Endpoint: cfg.Exchange.Endpoint}
		sources = append(sources, exchange.NewAdapter(cfg.Exchange.Provider, spec, adapterLog,
			exchange.WithIdleTimeout(cfg.Exchange.IdleTimeout()),
			exchange.WithStubInterval(cfg.Exchange.StubInterval()),
		))
	}
	return sources, nil
}
