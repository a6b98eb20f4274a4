package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Order is the central entity: one line item funded by one escrow payment.
// A single payment signature may fund several orders (one per cart line
// item); the idempotency key keeps a retried creation from producing a
// second order for the same line item. Orders are never physically deleted;
// terminal states are retained for audit.
type Order struct {
	ID           string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	BuyerID      string `json:"buyer_id" gorm:"index;type:varchar(36)" validate:"required"`
	SellerID     string `json:"seller_id" gorm:"index;type:varchar(36)" validate:"required"`
	GigID        string `json:"gig_id" gorm:"type:varchar(36)" validate:"required"`
	PackageIndex *int   `json:"package_index"`

	AmountSol            float64 `json:"amount_sol" validate:"required,gt=0"`
	TransactionSignature string  `json:"transaction_signature" gorm:"index;type:varchar(128)" validate:"required"`
	EscrowAccount        string  `json:"escrow_account" gorm:"type:varchar(64)"`
	EscrowReleased       bool    `json:"escrow_released"`

	// IdempotencyKey is derived from (signature, gig, buyer) and enforced by
	// a unique index so concurrent duplicate creations race on the insert,
	// not on a check-then-act.
	IdempotencyKey string `json:"-" gorm:"uniqueIndex;type:varchar(64)"`

	Status OrderStatus `json:"status" gorm:"index;type:varchar(32)"`
	// Version backs the optimistic lock on status transitions.
	Version int `json:"-"`

	DeliveryDays         int        `json:"delivery_days"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`

	ProofDescription string   `json:"proof_description"`
	ProofFiles       []string `json:"proof_files" gorm:"serializer:json"`

	AdminNotes      string   `json:"admin_notes"`
	DisputeReason   string   `json:"dispute_reason"`
	RefundAmountSol *float64 `json:"refund_amount_sol"`
	PlatformFeeSol  *float64 `json:"platform_fee_sol"`

	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at"`
	DeliveredAt        *time.Time `json:"delivered_at"`
	DisputedAt         *time.Time `json:"disputed_at"`
	DisputeResolvedAt  *time.Time `json:"dispute_resolved_at"`
	CompletedAt        *time.Time `json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdempotencyKeyFor derives the creation dedup key for one paid line item.
func IdempotencyKeyFor(transactionSignature, gigID, buyerID string) string {
	sum := sha256.Sum256([]byte(transactionSignature + "|" + gigID + "|" + buyerID))
	return hex.EncodeToString(sum[:])
}

// Escrow transaction types. The record set for an order is the authoritative
// custody history; balance is never inferred from the pooled escrow account.
const (
	EscrowTxDeposit = "deposit"
	EscrowTxRelease = "release"
	EscrowTxRefund  = "refund"
)

// EscrowTransaction is one append-only custody movement tied to an order.
// Written once per movement, never updated.
type EscrowTransaction struct {
	ID                   string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID              string    `json:"order_id" gorm:"index;type:varchar(36)"`
	Type                 string    `json:"transaction_type" gorm:"type:varchar(16)"`
	AmountSol            float64   `json:"amount_sol"`
	TransactionSignature string    `json:"transaction_signature" gorm:"type:varchar(128)"`
	ApprovedBy           string    `json:"approved_by" gorm:"type:varchar(36)"` // admin id for mediated movements
	CreatedAt            time.Time `json:"created_at"`
}

// ReconciliationItem queues a paid line item whose order creation failed.
// The payment has already moved and cannot be rolled back unilaterally, so
// the item is held for manual repair instead of being dropped.
type ReconciliationItem struct {
	ID                   string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TransactionSignature string    `json:"transaction_signature" gorm:"type:varchar(128)"`
	GigID                string    `json:"gig_id" gorm:"type:varchar(36)"`
	BuyerID              string    `json:"buyer_id" gorm:"type:varchar(36)"`
	SellerID             string    `json:"seller_id" gorm:"type:varchar(36)"`
	AmountSol            float64   `json:"amount_sol"`
	Reason               string    `json:"reason"`
	CreatedAt            time.Time `json:"created_at"`
}

func (o *Order) String() string {
	return fmt.Sprintf("order %s [%s] %.4f SOL", o.ID, o.Status, o.AmountSol)
}
