package models

import "time"

// CartItem is a transient pre-order line item owned by the buyer. The unique
// index keeps the same gig/package pair from being added twice; the whole set
// is consumed and cleared when the cart is checked out.
type CartItem struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string    `json:"user_id" gorm:"uniqueIndex:idx_cart_line;type:varchar(36)" validate:"required"`
	GigID        string    `json:"gig_id" gorm:"uniqueIndex:idx_cart_line;type:varchar(36)" validate:"required"`
	PackageIndex *int      `json:"package_index" gorm:"uniqueIndex:idx_cart_line"`
	Quantity     int       `json:"quantity" validate:"gte=1"`
	CreatedAt    time.Time `json:"created_at"`
}
