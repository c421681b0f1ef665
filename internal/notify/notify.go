// Package notify forwards the loudest alerts (mega whales, large liquidations)
// to an out-of-band channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jamesd000/crypto-live-dashboard/internal/hub"
	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
)

// Sender delivers one formatted message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Notifier consumes a hub subscription and sends qualifying alerts.
type Notifier struct {
	sender         Sender
	minLiquidation decimal.Decimal
	log            zerolog.Logger
}

// New builds a notifier. Liquidations below minLiquidationUSD are skipped.
func New(sender Sender, minLiquidationUSD float64, log zerolog.Logger) *Notifier {
	return &Notifier{
		sender:         sender,
		minLiquidation: decimal.NewFromFloat(minLiquidationUSD),
		log:            log.With().Str("component", "notify").Logger(),
	}
}

// Run sends every qualifying alert from sub until the subscription closes.
// Send failures are logged and do not stop the loop.
func (n *Notifier) Run(ctx context.Context, sub *hub.Subscription) {
	for m := range sub.C() {
		if m.Type != hub.MessageAlert || !n.Wants(m.Alert) {
			continue
		}
		if err := n.sender.Send(ctx, Format(m.Alert)); err != nil {
			n.log.Warn().Err(err).Str("id", m.Alert.ID).Msg("notification failed")
			continue
		}
		n.log.Debug().Str("id", m.Alert.ID).Str("symbol", m.Alert.Symbol).Msg("notification sent")
	}
}

// Wants reports whether ce is loud enough to notify.
func (n *Notifier) Wants(ce market.ClassifiedEvent) bool {
	switch ce.Category {
	case market.CategoryMegaWhale:
		return true
	case market.CategoryLiquidation:
		return ce.Notional().GreaterThanOrEqual(n.minLiquidation)
	default:
		return false
	}
}

// Format renders ce as a Telegram MarkdownV2 message.
func Format(ce market.ClassifiedEvent) string {
	symbol := escapeMarkdownV2(market.DisplaySymbol(ce.Symbol))
	size := escapeMarkdownV2(FormatUSD(ce.Notional()))
	price := escapeMarkdownV2("$" + ce.Price.StringFixed(2))
	at := escapeMarkdownV2(ce.Timestamp.UTC().Format("15:04:05"))

	switch ce.Category {
	case market.CategoryLiquidation:
		return fmt.Sprintf("💥 *%s %s liquidated* %s @ %s\n%s UTC", symbol, ce.LiquidatedSide, size, price, at)
	default:
		icon := "🟢"
		if ce.Side == market.Sell {
			icon = "🔴"
		}
		tier := ""
		if ce.Tier != "" {
			tier = " \\[" + escapeMarkdownV2(ce.Tier) + "\\]"
		}
		return fmt.Sprintf("🐋 %s *%s %s* %s @ %s%s\n%s UTC", icon, symbol, ce.Side, size, price, tier, at)
	}
}

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

// FormatUSD abbreviates amount: $1.50M, $15.0K, $50.
func FormatUSD(amount decimal.Decimal) string {
	switch {
	case amount.GreaterThanOrEqual(million):
		return "$" + amount.Div(million).StringFixed(2) + "M"
	case amount.GreaterThanOrEqual(thousand):
		return "$" + amount.Div(thousand).StringFixed(1) + "K"
	default:
		return "$" + amount.StringFixed(0)
	}
}

func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
