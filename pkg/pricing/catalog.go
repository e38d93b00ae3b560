package pricing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Currency describes one supported display currency. USDRate is the
// amount of this currency equal to 1 USD. Exactly one currency in a
// catalog carries PrefersLocalPricing: the store's home currency, whose
// natively stored book prices are used directly to avoid a round-trip
// through USD.
type Currency struct {
	Code                string  `yaml:"code" json:"code"`
	Label               string  `yaml:"label" json:"label"`
	Locale              string  `yaml:"locale" json:"locale"`
	USDRate             float64 `yaml:"usdRate" json:"usdRate"`
	PrefersLocalPricing bool    `yaml:"prefersLocalPricing" json:"prefersLocalPricing"`
}

// Catalog is the fixed currency table, loaded once at process start.
type Catalog struct {
	byCode map[string]Currency
	order  []string
	home   Currency
}

type catalogFile struct {
	Currencies []Currency `yaml:"currencies"`
}

// LoadCatalog reads the currency table from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read currency catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse currency catalog: %w", err)
	}
	return NewCatalog(file.Currencies)
}

// NewCatalog validates and indexes the currency table.
func NewCatalog(currencies []Currency) (*Catalog, error) {
	if len(currencies) == 0 {
		return nil, errors.New("currency catalog is empty")
	}
	c := &Catalog{byCode: make(map[string]Currency, len(currencies))}
	homes := 0
	for _, cur := range currencies {
		code := strings.ToUpper(strings.TrimSpace(cur.Code))
		if code == "" {
			return nil, errors.New("currency code is required")
		}
		if _, dup := c.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate currency code %s", code)
		}
		if cur.USDRate <= 0 {
			return nil, fmt.Errorf("currency %s: usdRate must be positive", code)
		}
		if _, err := language.Parse(cur.Locale); err != nil {
			return nil, fmt.Errorf("currency %s: invalid locale %q: %w", code, cur.Locale, err)
		}
		if cur.PrefersLocalPricing {
			homes++
			c.home = cur
			c.home.Code = code
		}
		cur.Code = code
		c.byCode[code] = cur
		c.order = append(c.order, code)
	}
	if homes != 1 {
		return nil, fmt.Errorf("currency catalog needs exactly one prefersLocalPricing entry, got %d", homes)
	}
	usd, ok := c.byCode["USD"]
	if !ok {
		return nil, errors.New("currency catalog must include USD")
	}
	if usd.USDRate != 1 {
		return nil, errors.New("USD usdRate must be 1")
	}
	return c, nil
}

// Get returns the currency for a code (case-insensitive).
func (c *Catalog) Get(code string) (Currency, bool) {
	cur, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return cur, ok
}

// Home returns the currency flagged prefersLocalPricing.
func (c *Catalog) Home() Currency {
	return c.home
}

// Codes lists the supported currency codes in catalog order.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
