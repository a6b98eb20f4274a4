package repositories

import (
	"time"

	"gigmarket/internal/models"
)

// OrderRepository defines the interface for order and escrow ledger access.
// Orders are never deleted; terminal states are retained for audit.
type OrderRepository interface {
	// Create inserts the order, relying on the idempotency key's unique
	// constraint to reject duplicates. Returns models.ErrDuplicatePayment
	// (wrapped) when the key already produced an order.
	Create(order *models.Order) error
	GetByID(id string) (*models.Order, error)
	GetByIdempotencyKey(key string) (*models.Order, error)
	ListByUser(userID string) ([]models.Order, error)
	ListBySignature(signature string) ([]models.Order, error)

	// UpdateTransition persists a state transition under an optimistic
	// version check: the write only lands when order.Version still matches
	// the stored row, and bumps the version. Returns
	// models.ErrVersionConflict when another writer got there first.
	UpdateTransition(order *models.Order) error

	// FindAutoReleasable returns orders in proof_submitted whose delivery
	// timestamp is older than the cutoff. The caller must still win the
	// per-order version check before applying the transition.
	FindAutoReleasable(cutoff time.Time) ([]models.Order, error)

	// AppendEscrowTransaction writes one custody movement. Append-only.
	AppendEscrowTransaction(tx *models.EscrowTransaction) error
	ListEscrowTransactions(orderID string) ([]models.EscrowTransaction, error)

	// EnqueueReconciliation records a paid line item whose order creation
	// failed, so the payment is never silently dropped.
	EnqueueReconciliation(item *models.ReconciliationItem) error
	ListReconciliation() ([]models.ReconciliationItem, error)
}
