package repositories

import (
	"fmt"
	"sync"
	"time"

	"gigmarket/internal/models"

	"github.com/google/uuid"
)

// MockCartRepository is an in-memory implementation of CartRepository.
type MockCartRepository struct {
	items map[string]models.CartItem
	mu    sync.RWMutex
}

// NewMockCartRepository creates a new instance of MockCartRepository.
func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{
		items: make(map[string]models.CartItem),
	}
}

// ListByUser returns all cart items owned by the user.
func (r *MockCartRepository) ListByUser(userID string) ([]models.CartItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []models.CartItem
	for _, item := range r.items {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

// Add inserts a cart line item, rejecting duplicate (gig, package) pairs.
func (r *MockCartRepository) Add(item *models.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.UserID == item.UserID && existing.GigID == item.GigID &&
			samePackage(existing.PackageIndex, item.PackageIndex) {
			return fmt.Errorf("%w: item already in cart", models.ErrValidation)
		}
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	item.CreatedAt = time.Now()
	r.items[item.ID] = *item
	return nil
}

// Remove deletes one cart line item.
func (r *MockCartRepository) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: cart item %s", models.ErrNotFound, id)
	}
	delete(r.items, id)
	return nil
}

// UpdateQuantity changes the quantity of one cart line item.
func (r *MockCartRepository) UpdateQuantity(id string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", models.ErrValidation)
	}
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: cart item %s", models.ErrNotFound, id)
	}
	item.Quantity = quantity
	r.items[id] = item
	return nil
}

// ClearForUser removes every cart item owned by the user.
func (r *MockCartRepository) ClearForUser(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, item := range r.items {
		if item.UserID == userID {
			delete(r.items, id)
		}
	}
	return nil
}

func samePackage(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
