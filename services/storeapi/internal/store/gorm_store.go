package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bookmart/pkg/domain"
)

// GormCartStore implements CartStore using GORM + Postgres.
type GormCartStore struct {
	db *gorm.DB
}

// NewGormCartStore opens the DB and runs auto-migrations.
func NewGormCartStore(dsn string) (*GormCartStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&CartItemModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormCartStore{db: db}, nil
}

// List returns the owner's cart ordered by first add.
func (s *GormCartStore) List(ctx context.Context, owner string) ([]domain.CartItem, error) {
	var models []CartItemModel
	if err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.CartItem, 0, len(models))
	for _, m := range models {
		item, err := itemFromModel(m)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Add increments the quantity for a book inside one transaction so
// concurrent adds never lose an increment.
func (s *GormCartStore) Add(ctx context.Context, owner string, book domain.Book, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model CartItemModel
		err := tx.Where("owner = ? AND book_id = ?", owner, book.ID).First(&model).Error
		if err == gorm.ErrRecordNotFound {
			model, err = itemToModel(owner, domain.CartItem{Book: book, Quantity: clampQuantity(quantity)})
			if err != nil {
				return err
			}
			return tx.Create(&model).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&CartItemModel{}).
			Where("owner = ? AND book_id = ?", owner, book.ID).
			Update("quantity", clampQuantity(model.Quantity+quantity)).Error
	})
}

// SetQuantity sets an absolute quantity; zero or less removes the row.
func (s *GormCartStore) SetQuantity(ctx context.Context, owner, bookID string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, owner, bookID)
	}
	return s.db.WithContext(ctx).Model(&CartItemModel{}).
		Where("owner = ? AND book_id = ?", owner, bookID).
		Update("quantity", clampQuantity(quantity)).Error
}

// Remove deletes one book's row.
func (s *GormCartStore) Remove(ctx context.Context, owner, bookID string) error {
	return s.db.WithContext(ctx).
		Delete(&CartItemModel{}, "owner = ? AND book_id = ?", owner, bookID).Error
}

// Clear drops the owner's whole cart.
func (s *GormCartStore) Clear(ctx context.Context, owner string) error {
	return s.db.WithContext(ctx).
		Delete(&CartItemModel{}, "owner = ?", owner).Error
}

func itemToModel(owner string, item domain.CartItem) (CartItemModel, error) {
	snapshot, err := json.Marshal(item.Book)
	if err != nil {
		return CartItemModel{}, fmt.Errorf("encode book snapshot: %w", err)
	}
	return CartItemModel{
		Owner:    owner,
		BookID:   item.Book.ID,
		Quantity: item.Quantity,
		Book:     snapshot,
	}, nil
}

func itemFromModel(m CartItemModel) (domain.CartItem, error) {
	var book domain.Book
	if len(m.Book) > 0 {
		if err := json.Unmarshal(m.Book, &book); err != nil {
			return domain.CartItem{}, fmt.Errorf("decode book snapshot: %w", err)
		}
	}
	if book.ID == "" {
		book.ID = m.BookID
	}
	return domain.CartItem{Book: book, Quantity: m.Quantity}, nil
}
