package cart

import (
	"encoding/json"
	"fmt"

	"bookmart/pkg/domain"
)

// MaxQuantity is the most of one book a cart may hold.
const MaxQuantity = 99

// DecodeResult distinguishes "intentionally empty" from "failed to
// parse": Err is set only when the stored envelope itself is unreadable.
// Individually unrecognized items are counted in Skipped and dropped.
type DecodeResult struct {
	Items   []domain.CartItem
	Skipped int
	Err     error
}

// Decoder maps every known historical cart-item shape onto the current
// canonical one. FormatUnit synthesizes a display price string for items
// persisted before formatted prices were stored.
type Decoder struct {
	FormatUnit func(amount float64) string
}

// NewDecoder builds a decoder. A nil formatter falls back to "$%.2f".
func NewDecoder(formatUnit func(float64) string) *Decoder {
	if formatUnit == nil {
		formatUnit = func(v float64) string { return fmt.Sprintf("$%.2f", v) }
	}
	return &Decoder{FormatUnit: formatUnit}
}

// rawItem accepts all shapes ever written to the cart slot:
//   - current: {"book": {... "unitPriceBase", "formattedUnitPrice"}, "quantity"}
//   - v1: the book carried the deprecated "price" field
//   - v0: flat items, {"id", "title", "author", "price", "quantity"}
type rawItem struct {
	Book     *rawBook `json:"book"`
	Quantity *int     `json:"quantity"`

	// flat v0 fields
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Author string   `json:"author"`
	Price  *float64 `json:"price"`
}

type rawBook struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Author             string   `json:"author"`
	UnitPriceBase      *float64 `json:"unitPriceBase"`
	Price              *float64 `json:"price"`
	FormattedUnitPrice string   `json:"formattedUnitPrice"`
}

// Decode reads a persisted cart item list.
func (d *Decoder) Decode(data []byte) DecodeResult {
	if len(data) == 0 {
		return DecodeResult{}
	}
	var raw []rawItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return DecodeResult{Err: fmt.Errorf("parse cart items: %w", err)}
	}
	result := DecodeResult{}
	for _, r := range raw {
		item, ok := d.decodeItem(r)
		if !ok {
			result.Skipped++
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result
}

func (d *Decoder) decodeItem(r rawItem) (domain.CartItem, bool) {
	var book domain.Book
	switch {
	case r.Book != nil && r.Book.ID != "":
		book = domain.Book{
			ID:                 r.Book.ID,
			Title:              r.Book.Title,
			Author:             r.Book.Author,
			FormattedUnitPrice: r.Book.FormattedUnitPrice,
		}
		switch {
		case r.Book.UnitPriceBase != nil:
			book.UnitPriceBase = *r.Book.UnitPriceBase
		case r.Book.Price != nil:
			book.UnitPriceBase = *r.Book.Price
		}
	case r.Book == nil && r.ID != "":
		book = domain.Book{ID: r.ID, Title: r.Title, Author: r.Author}
		if r.Price != nil {
			book.UnitPriceBase = *r.Price
		}
	default:
		return domain.CartItem{}, false
	}

	if book.UnitPriceBase < 0 {
		book.UnitPriceBase = 0
	}
	if book.FormattedUnitPrice == "" {
		book.FormattedUnitPrice = d.FormatUnit(book.UnitPriceBase)
	}

	qty := 1
	if r.Quantity != nil {
		qty = *r.Quantity
	}
	if qty <= 0 {
		return domain.CartItem{}, false
	}
	if qty > MaxQuantity {
		qty = MaxQuantity
	}
	return domain.CartItem{Book: book, Quantity: qty}, true
}

// Normalize applies the same clamping and formatted-price synthesis to
// already-typed items, e.g. a list fetched from the remote store.
func (d *Decoder) Normalize(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.Book.ID == "" || item.Quantity <= 0 {
			continue
		}
		if item.Quantity > MaxQuantity {
			item.Quantity = MaxQuantity
		}
		if item.Book.UnitPriceBase < 0 {
			item.Book.UnitPriceBase = 0
		}
		if item.Book.FormattedUnitPrice == "" {
			item.Book.FormattedUnitPrice = d.FormatUnit(item.Book.UnitPriceBase)
		}
		out = append(out, item)
	}
	return out
}

// Encode serializes the canonical item list for the cart slot.
func Encode(items []domain.CartItem) ([]byte, error) {
	if items == nil {
		items = []domain.CartItem{}
	}
	return json.Marshal(items)
}

func encodeShipping(addr domain.ShippingAddress) ([]byte, error) {
	return json.Marshal(addr)
}

func decodeShipping(data []byte) (domain.ShippingAddress, error) {
	var addr domain.ShippingAddress
	if err := json.Unmarshal(data, &addr); err != nil {
		return domain.ShippingAddress{}, fmt.Errorf("parse shipping address: %w", err)
	}
	return addr, nil
}
