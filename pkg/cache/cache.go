package cache

import "context"

// Well-known slot keys used by the storefront. The cart item list and
// the shipping address snapshot are cached independently.
const (
	SlotCartItems       = "cart:items"
	SlotShippingAddress = "cart:shipping_address"
)

// SlotStore is the local durable storage behind the storefront: a small
// set of string-keyed byte slots. It is byte-oriented; interpreting (and
// surviving) stale or corrupt payloads is the caller's concern.
type SlotStore interface {
	// Get returns the slot payload. A missing slot is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
