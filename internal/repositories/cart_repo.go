package repositories

import (
	"gigmarket/internal/models"
)

// CartRepository defines the interface for pre-order cart line items.
type CartRepository interface {
	ListByUser(userID string) ([]models.CartItem, error)
	// Add inserts a line item; the same (gig, package) pair may appear only
	// once per user.
	Add(item *models.CartItem) error
	Remove(id string) error
	UpdateQuantity(id string, quantity int) error
	// ClearForUser empties the cart after checkout has consumed it.
	ClearForUser(userID string) error
}
