package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
	"gigmarket/pkg/ledger"
)

// LineItem is one cart entry resolved against its gig: the effective price
// (package price when a tier is selected, else the base price) and delivery
// window, multiplied out by quantity.
type LineItem struct {
	GigID        string  `json:"gig_id"`
	SellerID     string  `json:"seller_id"`
	PackageIndex *int    `json:"package_index"`
	Quantity     int     `json:"quantity"`
	AmountSol    float64 `json:"amount_sol"`
	DeliveryDays int     `json:"delivery_days"`
}

// PaymentInstructions tells the buyer's wallet what to pay and where. The
// buyer transfers the total to the escrow account and reports back the
// confirmed signature; the server drives everything after that.
type PaymentInstructions struct {
	EscrowAccount string     `json:"escrow_account"`
	TotalSol      float64    `json:"total_sol"`
	LineItems     []LineItem `json:"line_items"`
}

// CheckoutResult reports the outcome of converting a paid cart into orders.
type CheckoutResult struct {
	TransactionSignature string         `json:"transaction_signature"`
	Orders               []models.Order `json:"orders"`
	// Reconciled counts line items whose order creation failed after the
	// payment landed; they are queued for manual repair, never dropped.
	Reconciled int `json:"reconciled"`
}

// CheckoutService is the escrow payment initiator: it computes what a cart
// costs, verifies the buyer's payment on the ledger, and converts the cart
// into orders exactly once.
type CheckoutService struct {
	cartRepo  repositories.CartRepository
	gigRepo   repositories.GigRepository
	orderRepo repositories.OrderRepository
	orders    *OrderService
	escrow    *EscrowService
	gateway   ledger.Gateway

	confirmTimeout time.Duration
}

// NewCheckoutService creates a new CheckoutService. A non-positive
// confirmTimeout falls back to 60 seconds.
func NewCheckoutService(cartRepo repositories.CartRepository, gigRepo repositories.GigRepository,
	orderRepo repositories.OrderRepository, orders *OrderService, escrow *EscrowService,
	gateway ledger.Gateway, confirmTimeout time.Duration) *CheckoutService {
	if confirmTimeout <= 0 {
		confirmTimeout = 60 * time.Second
	}
	return &CheckoutService{
		cartRepo:       cartRepo,
		gigRepo:        gigRepo,
		orderRepo:      orderRepo,
		orders:         orders,
		escrow:         escrow,
		gateway:        gateway,
		confirmTimeout: confirmTimeout,
	}
}

// Instructions resolves the buyer's cart into payment instructions.
func (s *CheckoutService) Instructions(buyerID string) (*PaymentInstructions, error) {
	items, err := s.resolveCart(buyerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", models.ErrValidation)
	}
	var total float64
	for _, item := range items {
		total += item.AmountSol
	}
	return &PaymentInstructions{
		EscrowAccount: s.escrow.Account(),
		TotalSol:      total,
		LineItems:     items,
	}, nil
}

// Pay submits the escrow transfer on the buyer's behalf and completes the
// checkout once it confirms. A signer rejection is terminal and surfaced
// immediately; a confirmation timeout returns the signature so the buyer can
// finish via Complete instead of paying again.
func (s *CheckoutService) Pay(ctx context.Context, buyerID, buyerWallet string) (*CheckoutResult, error) {
	instructions, err := s.Instructions(buyerID)
	if err != nil {
		return nil, err
	}

	signature, err := s.gateway.Submit(ctx, ledger.Transfer{
		From:      buyerWallet,
		To:        instructions.EscrowAccount,
		AmountSol: instructions.TotalSol,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			return nil, fmt.Errorf("%w: payment rejected by signer", models.ErrValidation)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
	}

	if _, err := s.gateway.Confirm(ctx, signature, s.confirmTimeout); err != nil {
		if errors.Is(err, ledger.ErrTimedOut) {
			// The transfer may still land. Hand the signature back for the
			// manual confirmation path rather than risking a double payment.
			return &CheckoutResult{TransactionSignature: signature},
				fmt.Errorf("%w: signature %s", models.ErrConfirmationTimeout, signature)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
	}

	return s.Complete(ctx, buyerID, signature)
}

// Complete converts the buyer's cart into orders for a payment signature.
// It verifies the signature on the ledger first: confirmation, not
// submission, is the trust boundary. The call is idempotent; re-running it
// with the same signature returns the same orders. It also serves as the
// manual recovery path when confirmation timed out during Pay.
func (s *CheckoutService) Complete(ctx context.Context, buyerID, signature string) (*CheckoutResult, error) {
	if err := s.escrow.VerifyDeposit(ctx, signature); err != nil {
		return nil, err
	}

	items, err := s.resolveCart(buyerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		// The cart was already consumed; a retry after a partial failure
		// still finds its orders by signature.
		orders, err := s.orderRepo.ListBySignature(signature)
		if err != nil {
			return nil, err
		}
		if len(orders) == 0 {
			return nil, fmt.Errorf("%w: cart is empty", models.ErrValidation)
		}
		// Signatures are public on the ledger; only the paying buyer gets
		// the orders back.
		var own []models.Order
		for _, order := range orders {
			if order.BuyerID == buyerID {
				own = append(own, order)
			}
		}
		if len(own) == 0 {
			return nil, fmt.Errorf("%w: no orders for this payment", models.ErrNotFound)
		}
		return &CheckoutResult{TransactionSignature: signature, Orders: own}, nil
	}

	result := &CheckoutResult{TransactionSignature: signature}
	for _, item := range items {
		order, _, err := s.orders.CreateOrder(CreateOrderRequest{
			GigID:                item.GigID,
			BuyerID:              buyerID,
			SellerID:             item.SellerID,
			Amount:               item.AmountSol,
			DeliveryDays:         item.DeliveryDays,
			PackageIndex:         item.PackageIndex,
			TransactionSignature: signature,
			EscrowAddress:        s.escrow.Account(),
		})
		if err != nil {
			// The payment has already moved; queue the line item for manual
			// repair instead of dropping it.
			log.Printf("Order creation failed for gig %s (signature %s): %v; queued for reconciliation",
				item.GigID, signature, err)
			if reconErr := s.orderRepo.EnqueueReconciliation(&models.ReconciliationItem{
				TransactionSignature: signature,
				GigID:                item.GigID,
				BuyerID:              buyerID,
				SellerID:             item.SellerID,
				AmountSol:            item.AmountSol,
				Reason:               err.Error(),
			}); reconErr != nil {
				log.Printf("Failed to enqueue reconciliation item for gig %s: %v", item.GigID, reconErr)
			}
			result.Reconciled++
			continue
		}

		// Acknowledge the escrow lock right away: the deposit is confirmed.
		if order.Status == models.StatusPending {
			if order, err = s.orders.AcknowledgeEscrowLock(order.ID); err != nil {
				return nil, err
			}
		}
		result.Orders = append(result.Orders, *order)
	}

	// Consumed and cleared in one step from the buyer's point of view:
	// failed items live on in the reconciliation queue.
	if err := s.cartRepo.ClearForUser(buyerID); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveCart loads the buyer's cart and prices every line item.
func (s *CheckoutService) resolveCart(buyerID string) ([]LineItem, error) {
	cartItems, err := s.cartRepo.ListByUser(buyerID)
	if err != nil {
		return nil, err
	}

	var items []LineItem
	for _, cartItem := range cartItems {
		gig, err := s.gigRepo.GetByID(cartItem.GigID)
		if err != nil {
			return nil, fmt.Errorf("cart item %s: %w", cartItem.ID, err)
		}
		price, deliveryDays := gig.PriceFor(cartItem.PackageIndex)
		quantity := cartItem.Quantity
		if quantity < 1 {
			quantity = 1
		}
		items = append(items, LineItem{
			GigID:        gig.ID,
			SellerID:     gig.SellerID,
			PackageIndex: cartItem.PackageIndex,
			Quantity:     quantity,
			AmountSol:    price * float64(quantity),
			DeliveryDays: deliveryDays,
		})
	}
	return items, nil
}
