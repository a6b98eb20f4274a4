package handlers

import (
	"errors"
	"log"

	"gigmarket/internal/middleware"
	"gigmarket/internal/models"
	"gigmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CheckoutHandler handles HTTP requests for paying a cart through escrow.
type CheckoutHandler struct {
	service *services.CheckoutService
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(service *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
	}
}

// RegisterRoutes registers the checkout routes with the Fiber app.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	checkoutRoutes := router.Group("/checkout")
	checkoutRoutes.Get("/", h.HandleInstructions)
	checkoutRoutes.Post("/", h.HandleCheckout)
	checkoutRoutes.Post("/confirm", h.HandleConfirm)
}

// HandleInstructions returns what the buyer's wallet should pay and where.
func (h *CheckoutHandler) HandleInstructions(c *fiber.Ctx) error {
	instructions, err := h.service.Instructions(middleware.UserID(c))
	if err != nil {
		return errorResponse(c, "Could not build payment instructions", err)
	}
	return c.JSON(instructions)
}

// CheckoutRequest is the checkout payload. When the wallet already paid,
// transaction_signature carries the signature to verify; otherwise
// wallet_address asks the server to drive the transfer via the gateway.
type CheckoutRequest struct {
	TransactionSignature string `json:"transaction_signature"`
	WalletAddress        string `json:"wallet_address"`
}

// HandleCheckout converts the caller's paid cart into orders. Payment is
// only trusted once the ledger confirms it; a confirmation timeout comes
// back as 202 with the signature so the buyer can finish via /confirm
// instead of paying twice.
func (h *CheckoutHandler) HandleCheckout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	buyerID := middleware.UserID(c)
	var (
		result *services.CheckoutResult
		err    error
	)
	if req.TransactionSignature != "" {
		result, err = h.service.Complete(c.Context(), buyerID, req.TransactionSignature)
	} else {
		result, err = h.service.Pay(c.Context(), buyerID, req.WalletAddress)
	}
	if err != nil {
		if errors.Is(err, models.ErrConfirmationTimeout) && result != nil {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"message":               "Payment confirmation pending; retry via /checkout/confirm",
				"transaction_signature": result.TransactionSignature,
			})
		}
		log.Printf("Checkout failed for buyer %s: %v", buyerID, err)
		return errorResponse(c, "Checkout failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// ConfirmRequest is the manual confirmation payload for transfers that
// landed after the checkout's polling bound.
type ConfirmRequest struct {
	TransactionSignature string `json:"transaction_signature"`
}

// HandleConfirm re-verifies a previously submitted payment signature and
// completes the checkout. Safe to retry.
func (h *CheckoutHandler) HandleConfirm(c *fiber.Ctx) error {
	var req ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	result, err := h.service.Complete(c.Context(), middleware.UserID(c), req.TransactionSignature)
	if err != nil {
		log.Printf("Manual payment confirmation failed: %v", err)
		return errorResponse(c, "Payment confirmation failed", err)
	}
	return c.JSON(result)
}
