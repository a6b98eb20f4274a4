package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
	"gigmarket/pkg/rabbitmq"
)

// Dispute resolution actions. These are the only two outcomes: full release
// to the seller or refund to the buyer.
const (
	ResolveRelease = "release"
	ResolveRefund  = "refund"
)

// ResolveDisputeRequest is the admin mediation payload. RefundPercentage
// applies to refunds only and defaults to 100.
type ResolveDisputeRequest struct {
	Action           string   `json:"action"`
	Reason           string   `json:"reason"`
	RefundPercentage *float64 `json:"refundPercentage,omitempty"`
}

// DisputeService resolves disputed orders on behalf of an admin mediator.
type DisputeService struct {
	orderRepo repositories.OrderRepository
	userRepo  repositories.UserRepository
	orders    *OrderService
	escrow    *EscrowService
	publisher EventPublisher
	nowFn     func() time.Time
}

// NewDisputeService creates a new DisputeService.
func NewDisputeService(orderRepo repositories.OrderRepository, userRepo repositories.UserRepository,
	orders *OrderService, escrow *EscrowService, publisher EventPublisher) *DisputeService {
	return &DisputeService{
		orderRepo: orderRepo,
		userRepo:  userRepo,
		orders:    orders,
		escrow:    escrow,
		publisher: publisher,
		nowFn:     time.Now,
	}
}

// Resolve decides the outcome of a disputed order. Only an admin may call
// it; the decision is final once recorded. "release" completes the order and
// pays the seller; "refund" cancels it and pays the buyer back.
func (s *DisputeService) Resolve(ctx context.Context, orderID, adminID string, req ResolveDisputeRequest) (*models.Order, error) {
	admin, err := s.userRepo.GetByID(adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins can resolve disputes", models.ErrNotAuthorized)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: resolution reason is required", models.ErrValidation)
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusDisputed {
		return nil, fmt.Errorf("%w: order %s is not disputed", models.ErrInvalidTransition, orderID)
	}

	switch req.Action {
	case ResolveRelease:
		order, err = s.resolveRelease(ctx, order, adminID, req.Reason)
	case ResolveRefund:
		order, err = s.resolveRefund(ctx, order, adminID, req.Reason, req.RefundPercentage)
	default:
		return nil, fmt.Errorf("%w: unknown resolution action %q", models.ErrValidation, req.Action)
	}
	if err != nil {
		return nil, err
	}

	s.publish(rabbitmq.EventDisputeResolved, map[string]interface{}{
		"orderID":  order.ID,
		"buyerID":  order.BuyerID,
		"sellerID": order.SellerID,
		"action":   req.Action,
		"reason":   req.Reason,
	})
	return order, nil
}

// resolveRelease completes the disputed order and pays the seller in full
// (net of the platform fee). The order is claimed into approved_for_release
// under the version check before any money moves; a rival mediator loses the
// claim and never reaches the ledger.
func (s *DisputeService) resolveRelease(ctx context.Context, order *models.Order, adminID, reason string) (*models.Order, error) {
	now := s.nowFn()
	if err := s.orders.Transition(order, models.StatusApprovedForRelease, func(o *models.Order) {
		o.DisputeResolvedAt = &now
		o.AdminNotes = appendNote(o.AdminNotes, reason)
	}); err != nil {
		return nil, err
	}
	return s.orders.ExecuteRelease(ctx, order, adminID)
}

// resolveRefund cancels the disputed order and refunds the buyer. Escrow is
// never released to the seller on this path.
func (s *DisputeService) resolveRefund(ctx context.Context, order *models.Order, adminID, reason string, pct *float64) (*models.Order, error) {
	percentage := 100.0
	if pct != nil {
		if *pct <= 0 || *pct > 100 {
			return nil, fmt.Errorf("%w: refund percentage must be in (0,100]", models.ErrValidation)
		}
		percentage = *pct
	}
	refund := order.AmountSol * percentage / 100

	// Win the terminal transition before any money moves: of two concurrent
	// resolutions only the version-check winner reaches the payout.
	now := s.nowFn()
	if err := s.orders.Transition(order, models.StatusCancelled, func(o *models.Order) {
		o.RefundAmountSol = &refund
		o.DisputeResolvedAt = &now
		o.AdminNotes = appendNote(o.AdminNotes, reason)
	}); err != nil {
		return nil, err
	}

	signature, err := s.escrow.PayOut(ctx, order.BuyerID, refund)
	if err != nil {
		// The cancellation is recorded but the refund has not landed; queue
		// the movement for manual repair so it is not lost.
		if reconErr := s.orderRepo.EnqueueReconciliation(&models.ReconciliationItem{
			TransactionSignature: order.TransactionSignature,
			GigID:                order.GigID,
			BuyerID:              order.BuyerID,
			SellerID:             order.SellerID,
			AmountSol:            refund,
			Reason:               fmt.Sprintf("refund payout failed: %v", err),
		}); reconErr != nil {
			log.Printf("Failed to enqueue reconciliation for order %s: %v", order.ID, reconErr)
		}
		return nil, fmt.Errorf("escrow refund for order %s failed: %w", order.ID, err)
	}

	if err := s.orderRepo.AppendEscrowTransaction(&models.EscrowTransaction{
		OrderID:              order.ID,
		Type:                 models.EscrowTxRefund,
		AmountSol:            refund,
		TransactionSignature: signature,
		ApprovedBy:           adminID,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *DisputeService) publish(event string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderEvent(event, data); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", event, err)
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
