package repositories

import (
	"fmt"
	"sync"
	"time"

	"gigmarket/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository with
// the same idempotency and optimistic-locking semantics as the GORM one.
type MockOrderRepository struct {
	orders         map[string]models.Order
	byKey          map[string]string // idempotency key -> order id
	escrowTxs      []models.EscrowTransaction
	reconciliation []models.ReconciliationItem
	mu             sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
		byKey:  make(map[string]string),
	}
}

// Create adds a new order, rejecting duplicate idempotency keys.
func (r *MockOrderRepository) Create(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[order.IdempotencyKey]; exists {
		return fmt.Errorf("%w: idempotency key %s", models.ErrDuplicatePayment, order.IdempotencyKey)
	}
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	r.byKey[order.IdempotencyKey] = order.ID
	return nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	return &order, nil
}

// GetByIdempotencyKey returns the order created for a dedup key.
func (r *MockOrderRepository) GetByIdempotencyKey(key string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: idempotency key %s", models.ErrNotFound, key)
	}
	order := r.orders[id]
	return &order, nil
}

// ListByUser returns all orders where the user is buyer or seller.
func (r *MockOrderRepository) ListByUser(userID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []models.Order
	for _, order := range r.orders {
		if order.BuyerID == userID || order.SellerID == userID {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

// ListBySignature returns every order funded by one payment signature.
func (r *MockOrderRepository) ListBySignature(signature string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []models.Order
	for _, order := range r.orders {
		if order.TransactionSignature == signature {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

// UpdateTransition applies the write only when the stored version matches.
func (r *MockOrderRepository) UpdateTransition(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, order.ID)
	}
	if stored.Version != order.Version {
		return fmt.Errorf("%w: order %s at version %d", models.ErrVersionConflict, order.ID, order.Version)
	}
	order.Version++
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	return nil
}

// FindAutoReleasable returns proof_submitted orders delivered before cutoff,
// plus claimed orders whose payout never landed so the timer retries them.
func (r *MockOrderRepository) FindAutoReleasable(cutoff time.Time) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []models.Order
	for _, order := range r.orders {
		stalled := order.Status == models.StatusProofSubmitted &&
			order.DeliveredAt != nil && order.DeliveredAt.Before(cutoff)
		claimedUnpaid := order.Status == models.StatusApprovedForRelease && !order.EscrowReleased
		if stalled || claimedUnpaid {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

// AppendEscrowTransaction writes one custody movement record.
func (r *MockOrderRepository) AppendEscrowTransaction(tx *models.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.CreatedAt = time.Now()
	r.escrowTxs = append(r.escrowTxs, *tx)
	return nil
}

// ListEscrowTransactions returns the custody history of an order.
func (r *MockOrderRepository) ListEscrowTransactions(orderID string) ([]models.EscrowTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var txs []models.EscrowTransaction
	for _, tx := range r.escrowTxs {
		if tx.OrderID == orderID {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// EnqueueReconciliation records a failed post-payment line item.
func (r *MockOrderRepository) EnqueueReconciliation(item *models.ReconciliationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.CreatedAt = time.Now()
	r.reconciliation = append(r.reconciliation, *item)
	return nil
}

// ListReconciliation returns all queued reconciliation items.
func (r *MockOrderRepository) ListReconciliation() ([]models.ReconciliationItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]models.ReconciliationItem, len(r.reconciliation))
	copy(items, r.reconciliation)
	return items, nil
}
