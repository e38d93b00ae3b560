package pricing

import (
	"fmt"
	"sync"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Source holds a book's two canonical stored prices: one in the store's
// home currency and one in USD. Either may be absent or zero.
type Source struct {
	LocalAmount float64 `json:"localAmount"`
	USDAmount   float64 `json:"usdAmount"`
}

// Quote is a computed display price.
type Quote struct {
	Currency         string  `json:"currency"`
	Amount           float64 `json:"amount"`
	Formatted        string  `json:"formatted"`
	BaseUSDAmount    float64 `json:"baseUsdAmount"`
	UsedLocalPricing bool    `json:"usedLocalPricing"`
}

// Engine converts canonical stored prices into display amounts. It never
// errors: degenerate inputs resolve to a zero amount.
type Engine struct {
	catalog *Catalog

	mu       sync.Mutex
	printers map[string]*message.Printer
}

// NewEngine builds a pricing engine over a validated catalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{
		catalog:  catalog,
		printers: make(map[string]*message.Printer),
	}
}

// Catalog exposes the engine's currency table.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// BookPrice computes the display price of qty units in the target
// currency. Unknown currency codes quote in USD. When the target is the
// home currency and the source carries a positive local price, that
// price is used directly so the home-currency display never accumulates
// rounding drift from a USD round-trip.
func (e *Engine) BookPrice(src Source, code string, qty int) Quote {
	if qty < 0 {
		qty = 0
	}
	target, ok := e.catalog.Get(code)
	if !ok {
		target, _ = e.catalog.Get("USD")
	}

	usdUnit := e.canonicalUSDUnit(src)
	quote := Quote{
		Currency:      target.Code,
		BaseUSDAmount: usdUnit * float64(qty),
	}
	if target.PrefersLocalPricing && src.LocalAmount > 0 {
		quote.Amount = src.LocalAmount * float64(qty)
		quote.UsedLocalPricing = true
	} else {
		quote.Amount = usdUnit * float64(qty) * target.USDRate
	}
	quote.Formatted = e.Format(target.Code, quote.Amount)
	return quote
}

// UnitUSD returns the canonical USD unit price for a source.
func (e *Engine) UnitUSD(src Source) float64 {
	return e.canonicalUSDUnit(src)
}

func (e *Engine) canonicalUSDUnit(src Source) float64 {
	if src.USDAmount > 0 {
		return src.USDAmount
	}
	home := e.catalog.Home()
	if src.LocalAmount > 0 && home.USDRate > 0 {
		return src.LocalAmount / home.USDRate
	}
	return 0
}

// Format renders an amount with the locale-specific currency formatter.
// Printer instances are cached per currency code.
func (e *Engine) Format(code string, amount float64) string {
	cur, ok := e.catalog.Get(code)
	if !ok {
		return fmt.Sprintf("%s %.2f", code, amount)
	}
	unit, err := currency.ParseISO(cur.Code)
	if err != nil {
		return fmt.Sprintf("%s %.2f", cur.Code, amount)
	}
	return e.printer(cur).Sprint(currency.Symbol(unit.Amount(amount)))
}

func (e *Engine) printer(cur Currency) *message.Printer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.printers[cur.Code]; ok {
		return p
	}
	tag, err := language.Parse(cur.Locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	e.printers[cur.Code] = p
	return p
}
