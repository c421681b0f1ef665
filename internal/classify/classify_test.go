package classify

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(price, qty string) market.Event {
	return market.Event{Symbol: "BTCUSDT", Kind: market.KindTrade, Price: d(price), Quantity: d(qty), Side: market.Buy}
}

func mustThresholds(t *testing.T, whale, mega, floor float64) Thresholds {
	t.Helper()
	th, err := NewThresholds(whale, mega, floor)
	if err != nil {
		t.Fatalf("NewThresholds returned error: %v", err)
	}
	return th
}

func TestClassifyScenario(t *testing.T) {
	th := mustThresholds(t, 15000, 100000, 0)
	c, err := New(th)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ce, forward := c.Process(trade("100", "150"))
	if ce.Category != market.CategoryWhale || !forward {
		t.Fatalf("expected forwarded whale, got %s forward=%v", ce.Category, forward)
	}
	if !ce.Notional().Equal(d("15000")) {
		t.Fatalf("unexpected notional %s", ce.Notional())
	}

	ce, forward = c.Process(trade("1000", "100"))
	if ce.Category != market.CategoryMegaWhale || !forward {
		t.Fatalf("expected forwarded mega whale, got %s forward=%v", ce.Category, forward)
	}

	ce, forward = c.Process(trade("10", "5"))
	if ce.Category != market.CategoryTrivial || forward {
		t.Fatalf("expected suppressed trivial, got %s forward=%v", ce.Category, forward)
	}
	if c.Suppressed() != 1 {
		t.Fatalf("expected one suppressed event, got %d", c.Suppressed())
	}
	if ce.ID == "" {
		t.Fatalf("expected an id on processed events")
	}
}

func TestClassifyBoundariesBelongToHigherBucket(t *testing.T) {
	th := mustThresholds(t, 15000, 100000, 0)
	cases := []struct {
		price, qty string
		want       market.Category
	}{
		{"14999.99", "1", market.CategoryTrivial},
		{"15000", "1", market.CategoryWhale},
		{"0.1", "150000", market.CategoryWhale},
		{"99999.99", "1", market.CategoryWhale},
		{"100000", "1", market.CategoryMegaWhale},
		{"0.01", "10000000", market.CategoryMegaWhale},
	}
	for _, tc := range cases {
		got := Classify(trade(tc.price, tc.qty), th).Category
		if got != tc.want {
			t.Fatalf("%s x %s: expected %s got %s", tc.price, tc.qty, tc.want, got)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	th := mustThresholds(t, 15000, 100000, 0)
	for i := int64(0); i < 500; i++ {
		ev := trade(decimal.NewFromInt(i*397).String(), "1")
		first := Classify(ev, th)
		for j := 0; j < 3; j++ {
			if again := Classify(ev, th); again.Category != first.Category || !again.Notional().Equal(first.Notional()) {
				t.Fatalf("non-deterministic classification for %s", ev.Price)
			}
		}
	}
}

func TestClassifyFunding(t *testing.T) {
	th := mustThresholds(t, 15000, 100000, 0)
	rate := d("0.0001")
	ev := market.Event{Symbol: "BTCUSDT", Kind: market.KindFunding, Price: d("65000"), FundingRate: &rate}
	ce := Classify(ev, th)
	if ce.Category != market.CategoryFunding {
		t.Fatalf("expected funding category, got %s", ce.Category)
	}
	if ce.Funding == nil || !ce.Funding.RatePct.Equal(d("0.01")) || !ce.Funding.AnnualizedPct.Equal(d("10.95")) {
		t.Fatalf("unexpected funding figures %+v", ce.Funding)
	}
	if ce.Funding.Band != market.FundingPositive {
		t.Fatalf("expected positive band, got %s", ce.Funding.Band)
	}
}

func TestBand(t *testing.T) {
	cases := map[string]market.FundingBand{
		"60":  market.FundingExtreme,
		"50":  market.FundingHigh,
		"31":  market.FundingHigh,
		"10":  market.FundingPositive,
		"5":   market.FundingNormal,
		"-10": market.FundingNormal,
		"-11": market.FundingNegative,
	}
	for pct, want := range cases {
		if got := Band(d(pct)); got != want {
			t.Fatalf("%s: expected %s got %s", pct, want, got)
		}
	}
}

func TestClassifyLiquidation(t *testing.T) {
	liq := market.Event{Symbol: "ETHUSDT", Kind: market.KindLiquidation, Price: d("10"), Quantity: d("1"), Side: market.Sell}

	noFloor := mustThresholds(t, 15000, 100000, 0)
	ce := Classify(liq, noFloor)
	if ce.Category != market.CategoryLiquidation {
		t.Fatalf("liquidations are notable regardless of size, got %s", ce.Category)
	}
	if ce.LiquidatedSide != "LONG" {
		t.Fatalf("forced sell closes a long, got %s", ce.LiquidatedSide)
	}

	withFloor := mustThresholds(t, 15000, 100000, 5000)
	if got := Classify(liq, withFloor).Category; got != market.CategoryTrivial {
		t.Fatalf("expected sub-floor liquidation to be trivial, got %s", got)
	}
	liq.Price = d("5000")
	if got := Classify(liq, withFloor).Category; got != market.CategoryLiquidation {
		t.Fatalf("expected liquidation at the floor to stay notable, got %s", got)
	}
}

func TestSizeTier(t *testing.T) {
	cases := map[string]string{"15000": "BIG", "499999": "BIG", "500000": "HUGE", "1000000": "MEGA"}
	for notional, want := range cases {
		if got := SizeTier(d(notional)); got != want {
			t.Fatalf("%s: expected %s got %s", notional, want, got)
		}
	}
}

func TestThresholdValidation(t *testing.T) {
	for _, tc := range []struct{ whale, mega, floor float64 }{
		{15000, 15000, 0},
		{15000, 100, 0},
		{0, 100, 0},
		{15000, 100000, -1},
	} {
		_, err := NewThresholds(tc.whale, tc.mega, tc.floor)
		var cfgErr *market.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%+v: expected ConfigurationError, got %v", tc, err)
		}
	}
	if _, err := New(Thresholds{Whale: d("10"), MegaWhale: d("5")}); err == nil {
		t.Fatalf("expected New to reject inverted thresholds")
	}
}
