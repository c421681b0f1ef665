// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
)

// App captures process-wide runtime settings such as name, listen addresses, and logging level.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes the upstream streams to subscribe to.
type Exchange struct {
	Provider       string   `yaml:"provider"`
	Endpoint       string   `yaml:"endpoint"`
	Symbols        []string `yaml:"symbols"`
	Streams        []string `yaml:"streams"`
	IdleTimeoutMs  int      `yaml:"idle_timeout_ms"`
	StubIntervalMs int      `yaml:"stub_interval_ms"`
}

// Thresholds are the notional cut-offs used by the classifier, in quote currency.
type Thresholds struct {
	WhaleNotional     float64 `yaml:"whale_notional"`
	MegaWhaleNotional float64 `yaml:"mega_whale_notional"`
	LiquidationFloor  float64 `yaml:"liquidation_floor"`
}

// State sizes the per-symbol rolling window.
type State struct {
	RecentAlertsCapacity int `yaml:"recent_alerts_capacity"`
}

// Reconnect configures the supervisor backoff.
type Reconnect struct {
	BaseMs       int `yaml:"base_ms"`
	CapMs        int `yaml:"cap_ms"`
	ResetAfterMs int `yaml:"reset_after_ms"`
}

// Feed sizes the internal channels and per-viewer buffers.
type Feed struct {
	RecordsBuffer    int `yaml:"records_buffer"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// Telegram configures the optional mega-whale notifier.
type Telegram struct {
	Enabled           bool    `yaml:"enabled"`
	BotToken          string  `yaml:"bot_token"`
	ChatID            string  `yaml:"chat_id"`
	MaxRetries        int     `yaml:"max_retries"`
	RetryDelayMs      int     `yaml:"retry_delay_ms"`
	MinLiquidationUSD float64 `yaml:"min_liquidation_usd"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Exchange   Exchange   `yaml:"exchange"`
	Thresholds Thresholds `yaml:"thresholds"`
	State      State      `yaml:"state"`
	Reconnect  Reconnect  `yaml:"reconnect"`
	Feed       Feed       `yaml:"feed"`
	Telegram   Telegram   `yaml:"telegram"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		App: App{
			Name:        "crypto-live-dashboard",
			Env:         "dev",
			ListenAddr:  ":8000",
			MetricsAddr: ":9100",
			LogLevel:    "info",
		},
		Exchange: Exchange{
			Provider:       "binance",
			Endpoint:       "wss://fstream.binance.com",
			Symbols:        []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "DOGEUSDT", "WIFUSDT"},
			Streams:        []string{"aggTrade", "forceOrder", "markPrice"},
			IdleTimeoutMs:  30000,
			StubIntervalMs: 500,
		},
		Thresholds: Thresholds{
			WhaleNotional:     15000,
			MegaWhaleNotional: 100000,
			LiquidationFloor:  5000,
		},
		State:     State{RecentAlertsCapacity: 200},
		Reconnect: Reconnect{BaseMs: 1000, CapMs: 30000, ResetAfterMs: 60000},
		Feed:      Feed{RecordsBuffer: 4096, SubscriberBuffer: 256},
		Telegram:  Telegram{MaxRetries: 3, RetryDelayMs: 1000, MinLiquidationUSD: 100000},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct on top of Default.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets and addresses from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DASHBOARD_LISTEN_ADDR"); v != "" {
		c.App.ListenAddr = v
	}
	if v := getenv("DASHBOARD_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := getenv("DASHBOARD_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := getenv("DASHBOARD_TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
}

var knownStreams = map[string]bool{"aggTrade": true, "forceOrder": true, "markPrice": true}

// Validate rejects configurations the engine cannot run with. Every failure is a
// *market.ConfigurationError.
func (c *Config) Validate() error {
	whale := decimal.NewFromFloat(c.Thresholds.WhaleNotional)
	mega := decimal.NewFromFloat(c.Thresholds.MegaWhaleNotional)
	if !whale.IsPositive() {
		return market.NewConfigurationError("thresholds.whale_notional", "must be positive")
	}
	if mega.LessThanOrEqual(whale) {
		return market.NewConfigurationError("thresholds.mega_whale_notional", "must be greater than whale_notional (%s <= %s)", mega, whale)
	}
	if c.Thresholds.LiquidationFloor < 0 {
		return market.NewConfigurationError("thresholds.liquidation_floor", "must not be negative")
	}
	if c.State.RecentAlertsCapacity < 1 {
		return market.NewConfigurationError("state.recent_alerts_capacity", "must be at least 1")
	}
	if c.Exchange.IdleTimeoutMs <= 0 {
		return market.NewConfigurationError("exchange.idle_timeout_ms", "must be positive")
	}
	if c.Reconnect.BaseMs <= 0 {
		return market.NewConfigurationError("reconnect.base_ms", "must be positive")
	}
	if c.Reconnect.CapMs < c.Reconnect.BaseMs {
		return market.NewConfigurationError("reconnect.cap_ms", "must be at least base_ms")
	}
	if c.Feed.RecordsBuffer < 1 || c.Feed.SubscriberBuffer < 1 {
		return market.NewConfigurationError("feed", "buffers must be at least 1")
	}
	if len(c.Exchange.Streams) == 0 {
		return market.NewConfigurationError("exchange.streams", "must list at least one stream")
	}
	for _, stream := range c.Exchange.Streams {
		if !knownStreams[stream] {
			return market.NewConfigurationError("exchange.streams", "unknown stream %q", stream)
		}
		if stream != "forceOrder" && len(c.Exchange.Symbols) == 0 {
			return market.NewConfigurationError("exchange.symbols", "required for %s", stream)
		}
	}
	switch strings.ToLower(c.Exchange.Provider) {
	case "binance", "stub", "":
	default:
		return market.NewConfigurationError("exchange.provider", "unknown provider %q", c.Exchange.Provider)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return market.NewConfigurationError("telegram.bot_token", "is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return market.NewConfigurationError("telegram.chat_id", "is required when telegram is enabled")
		}
	}
	return nil
}

// IdleTimeout is the longest silence tolerated on an upstream connection.
func (e Exchange) IdleTimeout() time.Duration {
	return time.Duration(e.IdleTimeoutMs) * time.Millisecond
}

// StubInterval is the emit cadence of the offline provider.
func (e Exchange) StubInterval() time.Duration {
	return time.Duration(e.StubIntervalMs) * time.Millisecond
}

// Base is the first reconnect delay.
func (r Reconnect) Base() time.Duration { return time.Duration(r.BaseMs) * time.Millisecond }

// Cap bounds every reconnect delay.
func (r Reconnect) Cap() time.Duration { return time.Duration(r.CapMs) * time.Millisecond }

// ResetAfter is how long a connection must stay up before the backoff resets.
func (r Reconnect) ResetAfter() time.Duration {
	return time.Duration(r.ResetAfterMs) * time.Millisecond
}

// RetryDelay is the base delay between Telegram send attempts.
func (t Telegram) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelayMs) * time.Millisecond
}
