package repositories

import (
	"errors"
	"fmt"

	"gigmarket/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{
		db: db,
	}
}

// ListByUser returns all cart items owned by the user.
func (r *GORMCartRepository) ListByUser(userID string) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list cart items for user %s: %w", userID, err)
	}
	return items, nil
}

// Add inserts a cart line item. A duplicate (gig, package) pair for the same
// user is rejected as a validation error.
func (r *GORMCartRepository) Add(item *models.CartItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if err := r.db.Create(item).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: item already in cart", models.ErrValidation)
		}
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

// Remove deletes one cart line item.
func (r *GORMCartRepository) Remove(id string) error {
	res := r.db.Delete(&models.CartItem{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to remove cart item %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: cart item %s", models.ErrNotFound, id)
	}
	return nil
}

// UpdateQuantity changes the quantity of one cart line item.
func (r *GORMCartRepository) UpdateQuantity(id string, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", models.ErrValidation)
	}
	var item models.CartItem
	if err := r.db.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart item %s", models.ErrNotFound, id)
		}
		return fmt.Errorf("failed to get cart item %s: %w", id, err)
	}
	item.Quantity = quantity
	if err := r.db.Save(&item).Error; err != nil {
		return fmt.Errorf("failed to update cart item %s: %w", id, err)
	}
	return nil
}

// ClearForUser removes every cart item owned by the user.
func (r *GORMCartRepository) ClearForUser(userID string) error {
	if err := r.db.Delete(&models.CartItem{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to clear cart for user %s: %w", userID, err)
	}
	return nil
}
