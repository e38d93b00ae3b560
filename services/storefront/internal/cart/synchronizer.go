package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bookmart/pkg/cache"
	"bookmart/pkg/domain"
	"bookmart/services/storefront/internal/cartclient"
)

// Remote is the authoritative cart store. *cartclient.Client satisfies it.
type Remote interface {
	List(ctx context.Context, accessToken string) ([]domain.CartItem, error)
	AddItem(ctx context.Context, accessToken string, book domain.Book, quantity int) error
	SetQuantity(ctx context.Context, accessToken, bookID string, quantity int) error
	RemoveItem(ctx context.Context, accessToken, bookID string) error
	Clear(ctx context.Context, accessToken string) error
}

// Config wires a cart synchronizer.
type Config struct {
	Remote Remote
	Cache  cache.SlotStore
	// Session returns the current confirmed session, or nil when the
	// visitor is signed out. Mirroring needs its access token.
	Session func() *domain.Session
	Decoder *Decoder
	// MirrorConcurrency caps in-flight background mirror calls.
	// Defaults to 4.
	MirrorConcurrency int
	// StorageTimeout bounds one local cache read/write. Defaults to 3s.
	StorageTimeout time.Duration
}

// Synchronizer keeps the in-memory cart, hydrates it from the remote
// store with local-cache fallback, and mirrors local mutations to the
// remote store best-effort. Local state is authoritative for the
// session: mirror failures are logged and never rolled back, so remote
// state is only eventually consistent with what the visitor sees.
type Synchronizer struct {
	remote  Remote
	cache   cache.SlotStore
	session func() *domain.Session
	decoder *Decoder

	storageTimeout time.Duration

	mu           sync.Mutex
	items        []domain.CartItem
	shipping     *domain.ShippingAddress
	hydrated     bool
	remoteSynced bool

	mirrors *errgroup.Group
}

// New builds a cart synchronizer. Call Hydrate before mutating.
func New(cfg Config) *Synchronizer {
	decoder := cfg.Decoder
	if decoder == nil {
		decoder = NewDecoder(nil)
	}
	concurrency := cfg.MirrorConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	timeout := cfg.StorageTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	mirrors := &errgroup.Group{}
	mirrors.SetLimit(concurrency)
	return &Synchronizer{
		remote:         cfg.Remote,
		cache:          cfg.Cache,
		session:        cfg.Session,
		decoder:        decoder,
		storageTimeout: timeout,
		mirrors:        mirrors,
	}
}

// Hydrate loads the cart once at startup: remote first, local cache on
// any failure or when unauthenticated. Cache writes are suppressed until
// hydration completes so a transient empty state never clobbers the
// durable copy.
func (s *Synchronizer) Hydrate(ctx context.Context) {
	items, remoteOK := s.fetchRemote(ctx)
	if !remoteOK {
		items = s.readCachedItems(ctx)
	}

	s.mu.Lock()
	s.items = items
	s.remoteSynced = remoteOK
	s.hydrated = true
	s.mu.Unlock()

	if remoteOK {
		// Mirror the adopted remote list into the durable cache.
		s.persistItems()
	}
	s.loadShipping(ctx)
}

// Rehydrate re-runs the hydration protocol, e.g. after a sign-in. Any
// divergence accumulated while offline is resolved in the remote's
// favor when the remote is reachable.
func (s *Synchronizer) Rehydrate(ctx context.Context) {
	s.Hydrate(ctx)
}

func (s *Synchronizer) fetchRemote(ctx context.Context) ([]domain.CartItem, bool) {
	sess := s.currentSession()
	if sess == nil {
		return nil, false
	}
	items, err := s.remote.List(ctx, sess.AccessToken)
	if err != nil {
		if errors.Is(err, cartclient.ErrUnauthenticated) {
			slog.Info("remote cart unauthenticated, using local cache")
		} else {
			slog.Warn("remote cart fetch failed, using local cache", "err", err)
		}
		return nil, false
	}
	return s.decoder.Normalize(items), true
}

func (s *Synchronizer) readCachedItems(ctx context.Context) []domain.CartItem {
	if s.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	data, ok, err := s.cache.Get(ctx, cache.SlotCartItems)
	if err != nil {
		slog.Warn("cart cache read failed", "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	result := s.decoder.Decode(data)
	if result.Err != nil {
		slog.Warn("cart cache corrupt, starting empty", "err", result.Err)
		return nil
	}
	if result.Skipped > 0 {
		slog.Warn("dropped unrecognized cart items", "count", result.Skipped)
	}
	return result.Items
}

// Add puts qty more of a book in the cart. Quantities below one count
// as one; the per-book total is capped at MaxQuantity.
func (s *Synchronizer) Add(book domain.Book, qty int) {
	if book.ID == "" {
		return
	}
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	found := false
	for i := range s.items {
		if s.items[i].Book.ID == book.ID {
			s.items[i].Quantity += qty
			if s.items[i].Quantity > MaxQuantity {
				s.items[i].Quantity = MaxQuantity
			}
			found = true
			break
		}
	}
	if !found {
		capped := qty
		if capped > MaxQuantity {
			capped = MaxQuantity
		}
		s.items = append(s.items, domain.CartItem{Book: book, Quantity: capped})
	}
	mirror := s.remoteSynced
	s.mu.Unlock()

	s.persistItems()
	if mirror {
		s.mirror("add", func(ctx context.Context, token string) error {
			return s.remote.AddItem(ctx, token, book, qty)
		})
	}
}

// SetQuantity sets the absolute quantity for a book, clamped to
// [0, MaxQuantity]. Zero removes the item. Setting a book that is not
// in the cart is a no-op.
func (s *Synchronizer) SetQuantity(bookID string, qty int) {
	if qty < 0 {
		qty = 0
	}
	if qty > MaxQuantity {
		qty = MaxQuantity
	}

	s.mu.Lock()
	idx := -1
	for i := range s.items {
		if s.items[i].Book.ID == bookID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	removed := qty == 0
	if removed {
		s.items = append(s.items[:idx], s.items[idx+1:]...)
	} else {
		s.items[idx].Quantity = qty
	}
	mirror := s.remoteSynced
	s.mu.Unlock()

	s.persistItems()
	if !mirror {
		return
	}
	if removed {
		s.mirror("remove", func(ctx context.Context, token string) error {
			return s.remote.RemoveItem(ctx, token, bookID)
		})
		return
	}
	s.mirror("set_quantity", func(ctx context.Context, token string) error {
		return s.remote.SetQuantity(ctx, token, bookID, qty)
	})
}

// Remove drops a book from the cart.
func (s *Synchronizer) Remove(bookID string) {
	s.mu.Lock()
	kept := s.items[:0]
	for _, item := range s.items {
		if item.Book.ID != bookID {
			kept = append(kept, item)
		}
	}
	s.items = kept
	mirror := s.remoteSynced
	s.mu.Unlock()

	s.persistItems()
	if mirror {
		s.mirror("remove", func(ctx context.Context, token string) error {
			return s.remote.RemoveItem(ctx, token, bookID)
		})
	}
}

// Clear empties the cart.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	s.items = nil
	mirror := s.remoteSynced
	s.mu.Unlock()

	s.persistItems()
	if mirror {
		s.mirror("clear", func(ctx context.Context, token string) error {
			return s.remote.Clear(ctx, token)
		})
	}
}

// Items returns a copy of the current cart.
func (s *Synchronizer) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CartItem, len(s.items))
	copy(out, s.items)
	return out
}

// Subtotal sums unit base price × quantity over all items.
func (s *Synchronizer) Subtotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, item := range s.items {
		total += item.Book.UnitPriceBase * float64(item.Quantity)
	}
	return total
}

// RemoteSynced reports whether the cart is mirroring to the remote store.
func (s *Synchronizer) RemoteSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteSynced
}

// Hydrated reports whether startup hydration has completed.
func (s *Synchronizer) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// SetShippingAddress caches the address snapshot. Structurally equal
// updates skip the storage write.
func (s *Synchronizer) SetShippingAddress(addr domain.ShippingAddress) {
	normalized := addr.Normalized()

	s.mu.Lock()
	if s.shipping != nil && *s.shipping == normalized {
		s.mu.Unlock()
		return
	}
	s.shipping = &normalized
	hydrated := s.hydrated
	s.mu.Unlock()

	if !hydrated || s.cache == nil {
		return
	}
	payload, err := encodeShipping(normalized)
	if err != nil {
		slog.Warn("encode shipping address failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.storageTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cache.SlotShippingAddress, payload); err != nil {
		slog.Warn("persist shipping address failed", "err", err)
	}
}

// ShippingAddress returns the cached snapshot, if any.
func (s *Synchronizer) ShippingAddress() (domain.ShippingAddress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shipping == nil {
		return domain.ShippingAddress{}, false
	}
	return *s.shipping, true
}

// Close waits for in-flight background mirrors to settle.
func (s *Synchronizer) Close() {
	_ = s.mirrors.Wait()
}

func (s *Synchronizer) currentSession() *domain.Session {
	if s.session == nil {
		return nil
	}
	return s.session()
}

// mirror runs one best-effort remote write. Mirrors are unordered with
// respect to each other; the last write to arrive at the server wins.
func (s *Synchronizer) mirror(op string, call func(ctx context.Context, token string) error) {
	sess := s.currentSession()
	if sess == nil {
		return
	}
	token := sess.AccessToken
	s.mirrors.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := call(ctx, token); err != nil {
			slog.Warn("cart mirror failed", "op", op, "err", err)
		}
		return nil
	})
}

// persistItems writes the current list to the durable cache, but only
// once hydration has completed.
func (s *Synchronizer) persistItems() {
	s.mu.Lock()
	if !s.hydrated || s.cache == nil {
		s.mu.Unlock()
		return
	}
	snapshot := make([]domain.CartItem, len(s.items))
	copy(snapshot, s.items)
	s.mu.Unlock()

	data, err := Encode(snapshot)
	if err != nil {
		slog.Warn("encode cart items failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.storageTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cache.SlotCartItems, data); err != nil {
		slog.Warn("persist cart items failed", "err", err)
	}
}

func (s *Synchronizer) loadShipping(ctx context.Context) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	data, ok, err := s.cache.Get(ctx, cache.SlotShippingAddress)
	if err != nil || !ok {
		if err != nil {
			slog.Warn("shipping cache read failed", "err", err)
		}
		return
	}
	addr, err := decodeShipping(data)
	if err != nil {
		slog.Warn("shipping cache corrupt, ignoring", "err", err)
		return
	}
	normalized := addr.Normalized()
	s.mu.Lock()
	s.shipping = &normalized
	s.mu.Unlock()
}
