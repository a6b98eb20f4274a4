package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
	"gigmarket/pkg/rabbitmq"

	"github.com/go-playground/validator/v10"
)

// EventPublisher sends fire-and-forget order lifecycle notifications. The
// state machine never awaits delivery; failures are logged and ignored.
type EventPublisher interface {
	PublishOrderEvent(event string, data map[string]interface{}) error
}

// CreateOrderRequest is the payload of the idempotent order creation
// operation. BuyerID is taken from the authenticated caller by the handler.
type CreateOrderRequest struct {
	GigID                string  `json:"gigId" validate:"required"`
	BuyerID              string  `json:"buyerId" validate:"required"`
	SellerID             string  `json:"sellerId" validate:"required"`
	Amount               float64 `json:"amount" validate:"required,gt=0"`
	DeliveryDays         int     `json:"deliveryDays" validate:"gte=0"`
	PackageIndex         *int    `json:"packageIndex"`
	TransactionSignature string  `json:"transactionSignature" validate:"required"`
	EscrowAddress        string  `json:"escrowAddress" validate:"required"`
}

// OrderService owns the order lifecycle: idempotent creation after a
// confirmed payment, guarded state transitions, and escrow bookkeeping.
type OrderService struct {
	orderRepo      repositories.OrderRepository
	userRepo       repositories.UserRepository
	escrow         *EscrowService
	publisher      EventPublisher
	validate       *validator.Validate
	platformFeePct float64
	nowFn          func() time.Time
}

// NewOrderService creates a new OrderService. publisher may be nil; events
// are then skipped.
func NewOrderService(orderRepo repositories.OrderRepository, userRepo repositories.UserRepository,
	escrow *EscrowService, publisher EventPublisher, platformFeePct float64) *OrderService {
	return &OrderService{
		orderRepo:      orderRepo,
		userRepo:       userRepo,
		escrow:         escrow,
		publisher:      publisher,
		validate:       validator.New(),
		platformFeePct: platformFeePct,
		nowFn:          time.Now,
	}
}

// CreateOrder inserts one Order for a confirmed payment line item. The
// operation is idempotent: a retry with the same (signature, gig, buyer)
// tuple returns the order created by the first call instead of failing, with
// created=false. New orders start in pending; the escrow lock is
// acknowledged separately.
func (s *OrderService) CreateOrder(req CreateOrderRequest) (order *models.Order, created bool, err error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	now := s.nowFn()
	deliveryDays := req.DeliveryDays
	if deliveryDays == 0 {
		deliveryDays = 7
	}
	expected := now.AddDate(0, 0, deliveryDays)

	order = &models.Order{
		BuyerID:              req.BuyerID,
		SellerID:             req.SellerID,
		GigID:                req.GigID,
		PackageIndex:         req.PackageIndex,
		AmountSol:            req.Amount,
		TransactionSignature: req.TransactionSignature,
		EscrowAccount:        req.EscrowAddress,
		IdempotencyKey:       models.IdempotencyKeyFor(req.TransactionSignature, req.GigID, req.BuyerID),
		Status:               models.StatusPending,
		DeliveryDays:         deliveryDays,
		ExpectedDeliveryDate: &expected,
		PaymentConfirmedAt:   &now,
	}

	if err := s.orderRepo.Create(order); err != nil {
		if errors.Is(err, models.ErrDuplicatePayment) {
			// Same payment, same line item: return the existing order so
			// retries are always safe.
			existing, getErr := s.orderRepo.GetByIdempotencyKey(order.IdempotencyKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to load order for duplicate payment: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.publish(rabbitmq.EventOrderCreated, map[string]interface{}{
		"orderID":   order.ID,
		"buyerID":   order.BuyerID,
		"sellerID":  order.SellerID,
		"amountSol": order.AmountSol,
		"signature": order.TransactionSignature,
	})
	return order, true, nil
}

// CreateConfirmedOrder is the direct creation path: the payment signature is
// verified on the ledger before anything is inserted, and the escrow deposit
// is acknowledged right after, so the order comes back in_progress. Checkout
// verifies its batch signature once and calls CreateOrder per line item
// instead.
func (s *OrderService) CreateConfirmedOrder(ctx context.Context, req CreateOrderRequest) (order *models.Order, created bool, err error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if err := s.escrow.VerifyDeposit(ctx, req.TransactionSignature); err != nil {
		return nil, false, err
	}

	order, created, err = s.CreateOrder(req)
	if err != nil {
		return nil, false, err
	}
	if order.Status == models.StatusPending {
		if order, err = s.AcknowledgeEscrowLock(order.ID); err != nil {
			return nil, created, err
		}
	}
	return order, created, nil
}

// AcknowledgeEscrowLock records the deposit custody movement for a pending
// order and moves it to in_progress.
func (s *OrderService) AcknowledgeEscrowLock(orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(order, models.StatusInProgress, nil); err != nil {
		return nil, err
	}
	if err := s.orderRepo.AppendEscrowTransaction(&models.EscrowTransaction{
		OrderID:              order.ID,
		Type:                 models.EscrowTxDeposit,
		AmountSol:            order.AmountSol,
		TransactionSignature: order.TransactionSignature,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns an order visible to the requesting user. Admins see every
// order; buyers and sellers only their own.
func (s *OrderService) GetOrder(orderID, userID, role string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && order.BuyerID != userID && order.SellerID != userID {
		return nil, fmt.Errorf("%w: order %s does not belong to user %s", models.ErrNotAuthorized, orderID, userID)
	}
	return order, nil
}

// ListOrders returns all orders the user participates in.
func (s *OrderService) ListOrders(userID string) ([]models.Order, error) {
	return s.orderRepo.ListByUser(userID)
}

// ListEscrowTransactions returns the custody history of an order.
func (s *OrderService) ListEscrowTransactions(orderID string) ([]models.EscrowTransaction, error) {
	return s.orderRepo.ListEscrowTransactions(orderID)
}

// ListReconciliation returns the queue of paid line items awaiting manual
// repair.
func (s *OrderService) ListReconciliation() ([]models.ReconciliationItem, error) {
	return s.orderRepo.ListReconciliation()
}

// ApproveDelivery is the buyer accepting submitted proof. The order moves to
// approved_for_release and the escrow release is executed immediately.
func (s *OrderService) ApproveDelivery(ctx context.Context, orderID, buyerID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, fmt.Errorf("%w: only the buyer may approve delivery", models.ErrNotAuthorized)
	}
	if err := s.transition(order, models.StatusApprovedForRelease, nil); err != nil {
		return nil, err
	}
	return s.ExecuteRelease(ctx, order, "")
}

// ExecuteRelease pays the seller from escrow (net of the platform fee),
// records the release movement, and completes the order. The caller must
// already hold the order in approved_for_release; the claim is re-won under
// the version check before any money moves, so of two concurrent payers only
// one reaches the ledger. approvedBy names the admin for mediated releases
// and is empty for buyer approvals and auto-release.
func (s *OrderService) ExecuteRelease(ctx context.Context, order *models.Order, approvedBy string) (*models.Order, error) {
	if order.Status != models.StatusApprovedForRelease {
		return nil, fmt.Errorf("%w: order %s is not claimed for release", models.ErrInvalidTransition, order.ID)
	}
	if err := s.orderRepo.UpdateTransition(order); err != nil {
		return nil, err
	}

	fee := order.AmountSol * s.platformFeePct / 100
	payout := order.AmountSol - fee

	signature, err := s.escrow.PayOut(ctx, order.SellerID, payout)
	if err != nil {
		return nil, fmt.Errorf("escrow release for order %s failed: %w", order.ID, err)
	}

	now := s.nowFn()
	if err := s.transition(order, models.StatusCompleted, func(o *models.Order) {
		o.EscrowReleased = true
		o.PlatformFeeSol = &fee
		o.CompletedAt = &now
	}); err != nil {
		return nil, err
	}

	if err := s.orderRepo.AppendEscrowTransaction(&models.EscrowTransaction{
		OrderID:              order.ID,
		Type:                 models.EscrowTxRelease,
		AmountSol:            payout,
		TransactionSignature: signature,
		ApprovedBy:           approvedBy,
	}); err != nil {
		return nil, err
	}

	s.publish(rabbitmq.EventOrderCompleted, map[string]interface{}{
		"orderID":   order.ID,
		"sellerID":  order.SellerID,
		"payoutSol": payout,
		"signature": signature,
	})
	return order, nil
}

// RaiseDispute marks the order disputed. Either party may raise it from any
// non-terminal state.
func (s *OrderService) RaiseDispute(orderID, userID, reason string) (*models.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: dispute reason is required", models.ErrValidation)
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID && order.SellerID != userID {
		return nil, fmt.Errorf("%w: only a party to the order may dispute it", models.ErrNotAuthorized)
	}

	now := s.nowFn()
	if err := s.transition(order, models.StatusDisputed, func(o *models.Order) {
		o.DisputedAt = &now
		o.DisputeReason = reason
	}); err != nil {
		return nil, err
	}

	s.publish(rabbitmq.EventOrderDisputed, map[string]interface{}{
		"orderID":  order.ID,
		"buyerID":  order.BuyerID,
		"sellerID": order.SellerID,
		"raisedBy": userID,
		"reason":   reason,
	})
	return order, nil
}

// SetAdminNotes records mediation reasoning on the order. Admin only; the
// handler enforces the role, the service re-checks it.
func (s *OrderService) SetAdminNotes(orderID, adminID, notes string) (*models.Order, error) {
	admin, err := s.userRepo.GetByID(adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: admin role required", models.ErrNotAuthorized)
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	order.AdminNotes = notes
	if err := s.orderRepo.UpdateTransition(order); err != nil {
		return nil, err
	}
	return order, nil
}

// transition applies one guarded state machine step under the optimistic
// version check. mutate runs after the guard passes and before the write, so
// side-effect fields land in the same update as the status.
func (s *OrderService) transition(order *models.Order, to models.OrderStatus, mutate func(*models.Order)) error {
	if err := models.CheckTransition(order.Status, to); err != nil {
		return err
	}
	order.Status = to
	if mutate != nil {
		mutate(order)
	}
	return s.orderRepo.UpdateTransition(order)
}

// Transition exposes the guarded step for collaborators that orchestrate the
// lifecycle (dispute resolution, auto-release).
func (s *OrderService) Transition(order *models.Order, to models.OrderStatus, mutate func(*models.Order)) error {
	return s.transition(order, to, mutate)
}

func (s *OrderService) publish(event string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderEvent(event, data); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", event, err)
	}
}
