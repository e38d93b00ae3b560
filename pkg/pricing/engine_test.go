package pricing

import (
	"math"
	"strings"
	"testing"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog([]Currency{
		{Code: "USD", Label: "US Dollar", Locale: "en-US", USDRate: 1},
		{Code: "INR", Label: "Indian Rupee", Locale: "en-IN", USDRate: 83, PrefersLocalPricing: true},
		{Code: "EUR", Label: "Euro", Locale: "de-DE", USDRate: 0.92},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return catalog
}

func TestBookPriceUsesLocalDirectPricingForHomeCurrency(t *testing.T) {
	e := NewEngine(testCatalog(t))

	quote := e.BookPrice(Source{LocalAmount: 830}, "INR", 1)
	if quote.Amount != 830 {
		t.Fatalf("home currency should use stored local price, got %v", quote.Amount)
	}
	if !quote.UsedLocalPricing {
		t.Fatalf("expected usedLocalPricing")
	}
	if math.Abs(quote.BaseUSDAmount-10) > 1e-9 {
		t.Fatalf("canonical USD should be 830/83=10, got %v", quote.BaseUSDAmount)
	}
}

func TestBookPriceIsSelfConsistentInUSD(t *testing.T) {
	e := NewEngine(testCatalog(t))

	for _, src := range []Source{
		{USDAmount: 12.5},
		{LocalAmount: 830},
		{LocalAmount: 415, USDAmount: 5},
	} {
		quote := e.BookPrice(src, "USD", 1)
		if quote.Amount != quote.BaseUSDAmount {
			t.Fatalf("source %+v: USD amount %v != baseUSD %v", src, quote.Amount, quote.BaseUSDAmount)
		}
	}
}

func TestBookPriceConvertsThroughUSD(t *testing.T) {
	e := NewEngine(testCatalog(t))

	quote := e.BookPrice(Source{USDAmount: 10}, "EUR", 2)
	want := 10.0 * 2 * 0.92
	if math.Abs(quote.Amount-want) > 1e-9 {
		t.Fatalf("EUR conversion: got %v, want %v", quote.Amount, want)
	}
	if quote.UsedLocalPricing {
		t.Fatalf("non-home currency must not use local pricing")
	}
	if quote.Formatted == "" {
		t.Fatalf("expected a formatted price")
	}
}

func TestBookPriceDegenerateInputsResolveToZero(t *testing.T) {
	e := NewEngine(testCatalog(t))

	for _, src := range []Source{
		{},
		{LocalAmount: -5},
		{USDAmount: -1, LocalAmount: 0},
	} {
		quote := e.BookPrice(src, "INR", 3)
		if quote.Amount != 0 || quote.BaseUSDAmount != 0 {
			t.Fatalf("source %+v: expected zero quote, got %+v", src, quote)
		}
	}

	if quote := e.BookPrice(Source{USDAmount: 10}, "USD", -4); quote.Amount != 0 {
		t.Fatalf("negative quantity should quote zero, got %v", quote.Amount)
	}
}

func TestBookPriceUnknownCurrencyFallsBackToUSD(t *testing.T) {
	e := NewEngine(testCatalog(t))

	quote := e.BookPrice(Source{USDAmount: 7}, "XXX", 1)
	if quote.Currency != "USD" {
		t.Fatalf("unknown code should quote USD, got %s", quote.Currency)
	}
	if quote.Amount != 7 {
		t.Fatalf("unexpected amount %v", quote.Amount)
	}
}

func TestFormatCachesPrinterPerCurrency(t *testing.T) {
	e := NewEngine(testCatalog(t))

	first := e.Format("INR", 830)
	second := e.Format("INR", 830)
	if first == "" || first != second {
		t.Fatalf("formatting should be stable, got %q then %q", first, second)
	}
	if !strings.ContainsAny(first, "0123456789") {
		t.Fatalf("formatted price %q has no digits", first)
	}
	if len(e.printers) != 1 {
		t.Fatalf("expected one cached printer, got %d", len(e.printers))
	}
}
