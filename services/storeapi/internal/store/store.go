package store

import (
	"context"
	"sync"
	"time"

	"bookmart/pkg/domain"
)

// maxQuantity caps how many copies of one book a cart row may hold.
const maxQuantity = 99

// CartStore persists one cart per owner.
type CartStore interface {
	List(ctx context.Context, owner string) ([]domain.CartItem, error)
	// Add increments the owner's quantity for the book, materializing
	// the row from the snapshot when it does not exist yet.
	Add(ctx context.Context, owner string, book domain.Book, quantity int) error
	// SetQuantity sets an absolute quantity. Zero or less removes the row.
	SetQuantity(ctx context.Context, owner, bookID string, quantity int) error
	Remove(ctx context.Context, owner, bookID string) error
	Clear(ctx context.Context, owner string) error
}

type memoryCartRow struct {
	item    domain.CartItem
	addedAt time.Time
}

// MemoryCartStore keeps carts in memory, ordered by first add.
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string][]memoryCartRow
}

// NewMemoryCartStore constructs an in-memory cart store.
func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string][]memoryCartRow)}
}

// List returns the owner's cart items.
func (s *MemoryCartStore) List(_ context.Context, owner string) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.carts[owner]
	items := make([]domain.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item)
	}
	return items, nil
}

// Add increments the quantity for a book, clamped to the per-row cap.
func (s *MemoryCartStore) Add(_ context.Context, owner string, book domain.Book, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.carts[owner]
	for i, row := range rows {
		if row.item.Book.ID == book.ID {
			rows[i].item.Quantity = clampQuantity(row.item.Quantity + quantity)
			return nil
		}
	}
	s.carts[owner] = append(rows, memoryCartRow{
		item:    domain.CartItem{Book: book, Quantity: clampQuantity(quantity)},
		addedAt: time.Now().UTC(),
	})
	return nil
}

// SetQuantity sets an absolute quantity; zero or less removes the row.
func (s *MemoryCartStore) SetQuantity(_ context.Context, owner, bookID string, quantity int) error {
	if quantity <= 0 {
		return s.remove(owner, bookID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.carts[owner]
	for i, row := range rows {
		if row.item.Book.ID == bookID {
			rows[i].item.Quantity = clampQuantity(quantity)
			return nil
		}
	}
	return nil
}

// Remove deletes one book's row.
func (s *MemoryCartStore) Remove(_ context.Context, owner, bookID string) error {
	return s.remove(owner, bookID)
}

func (s *MemoryCartStore) remove(owner, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.carts[owner]
	for i, row := range rows {
		if row.item.Book.ID == bookID {
			s.carts[owner] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Clear drops the owner's whole cart.
func (s *MemoryCartStore) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, owner)
	return nil
}

func clampQuantity(q int) int {
	if q > maxQuantity {
		return maxQuantity
	}
	if q < 1 {
		return 1
	}
	return q
}
