package repositories

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gigmarket/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// Create inserts a new order. Duplicate idempotency keys surface as
// models.ErrDuplicatePayment so the service can return the existing order.
func (r *GORMOrderRepository) Create(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if err := r.db.Create(order).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: idempotency key %s", models.ErrDuplicatePayment, order.IdempotencyKey)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves a single order by its ID.
func (r *GORMOrderRepository) GetByID(id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// GetByIdempotencyKey retrieves the order created for a dedup key.
func (r *GORMOrderRepository) GetByIdempotencyKey(key string) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: idempotency key %s", models.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get order by idempotency key: %w", err)
	}
	return &order, nil
}

// ListByUser returns all orders where the user is buyer or seller.
func (r *GORMOrderRepository) ListByUser(userID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders for user %s: %w", userID, err)
	}
	return orders, nil
}

// ListBySignature returns every order funded by one payment signature.
func (r *GORMOrderRepository) ListBySignature(signature string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Where("transaction_signature = ?", signature).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders for signature: %w", err)
	}
	return orders, nil
}

// UpdateTransition writes the order only if its version is unchanged since it
// was read, then bumps the version. A lost race returns ErrVersionConflict.
func (r *GORMOrderRepository) UpdateTransition(order *models.Order) error {
	prevVersion := order.Version
	order.Version = prevVersion + 1
	order.UpdatedAt = time.Now()

	res := r.db.Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, prevVersion).
		Select("*").Omit("id", "created_at").
		Updates(order)
	if res.Error != nil {
		order.Version = prevVersion
		return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		order.Version = prevVersion
		return fmt.Errorf("%w: order %s at version %d", models.ErrVersionConflict, order.ID, prevVersion)
	}
	return nil
}

// FindAutoReleasable returns proof_submitted orders delivered before cutoff,
// plus claimed orders whose payout never landed so the timer retries them.
func (r *GORMOrderRepository) FindAutoReleasable(cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Where("(status = ? AND delivered_at < ?) OR (status = ? AND escrow_released = ?)",
		models.StatusProofSubmitted, cutoff, models.StatusApprovedForRelease, false).
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to find auto-releasable orders: %w", err)
	}
	return orders, nil
}

// AppendEscrowTransaction writes one custody movement record.
func (r *GORMOrderRepository) AppendEscrowTransaction(tx *models.EscrowTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if err := r.db.Create(tx).Error; err != nil {
		return fmt.Errorf("failed to append escrow transaction: %w", err)
	}
	return nil
}

// ListEscrowTransactions returns the custody history of an order in order.
func (r *GORMOrderRepository) ListEscrowTransactions(orderID string) ([]models.EscrowTransaction, error) {
	var txs []models.EscrowTransaction
	if err := r.db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list escrow transactions for order %s: %w", orderID, err)
	}
	return txs, nil
}

// EnqueueReconciliation records a failed post-payment line item.
func (r *GORMOrderRepository) EnqueueReconciliation(item *models.ReconciliationItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if err := r.db.Create(item).Error; err != nil {
		return fmt.Errorf("failed to enqueue reconciliation item: %w", err)
	}
	return nil
}

// ListReconciliation returns all queued reconciliation items.
func (r *GORMOrderRepository) ListReconciliation() ([]models.ReconciliationItem, error) {
	var items []models.ReconciliationItem
	if err := r.db.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list reconciliation items: %w", err)
	}
	return items, nil
}

// isDuplicateKeyError detects a unique constraint violation across drivers.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique failed")
}
