package store

import (
	"time"

	"gorm.io/datatypes"
)

// CartItemModel is the persisted cart row. The book snapshot is stored
// as JSONB so catalog changes never rewrite existing carts.
type CartItemModel struct {
	Owner     string `gorm:"primaryKey;size:128"`
	BookID    string `gorm:"primaryKey;size:128"`
	Quantity  int
	Book      datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name stable across model renames.
func (CartItemModel) TableName() string {
	return "cart_items"
}
