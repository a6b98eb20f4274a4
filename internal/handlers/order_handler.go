package handlers

import (
	"log"

	"gigmarket/internal/middleware"
	"gigmarket/internal/services"

	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for the order lifecycle: creation,
// proof submission, buyer approval, disputes, and admin mediation.
type OrderHandler struct {
	orders   *services.OrderService
	proofs   *services.ProofService
	disputes *services.DisputeService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders *services.OrderService, proofs *services.ProofService, disputes *services.DisputeService) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		proofs:   proofs,
		disputes: disputes,
	}
}

// RegisterRoutes registers the order routes with the Fiber app. The resolve
// and notes routes additionally require the admin role.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/", h.HandleListOrders)
	orderRoutes.Get("/:id", h.HandleGetOrder)
	orderRoutes.Get("/:id/escrow", h.HandleListEscrowTransactions)
	orderRoutes.Post("/:id/proof", h.HandleSubmitProof)
	orderRoutes.Post("/:id/approve", h.HandleApproveDelivery)
	orderRoutes.Post("/:id/dispute", h.HandleRaiseDispute)
	orderRoutes.Post("/:id/resolve", middleware.AdminRequired(), h.HandleResolveDispute)
	orderRoutes.Patch("/:id/notes", middleware.AdminRequired(), h.HandleSetNotes)

	adminRoutes := router.Group("/admin", middleware.AdminRequired())
	adminRoutes.Get("/reconciliation", h.HandleListReconciliation)
}

// HandleCreateOrder is the idempotent order creation endpoint. The payment
// signature is verified on the ledger before the order exists. The buyer is
// the authenticated caller; retries with the same payload return the same
// order with 200 instead of 201.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing create order request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	req.BuyerID = middleware.UserID(c)

	order, created, err := h.orders.CreateConfirmedOrder(c.Context(), req)
	if err != nil {
		log.Printf("Error creating order: %v", err)
		return errorResponse(c, "Could not create order", err)
	}

	status := fiber.StatusCreated
	if !created {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"orderId": order.ID,
		"order":   order,
	})
}

// HandleListOrders returns the caller's orders (as buyer or seller).
func (h *OrderHandler) HandleListOrders(c *fiber.Ctx) error {
	orders, err := h.orders.ListOrders(middleware.UserID(c))
	if err != nil {
		log.Printf("Error listing orders: %v", err)
		return errorResponse(c, "Could not retrieve orders", err)
	}
	return c.JSON(orders)
}

// HandleGetOrder returns one order, visible to its parties and admins.
func (h *OrderHandler) HandleGetOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")
	order, err := h.orders.GetOrder(orderID, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		log.Printf("Error getting order %s: %v", orderID, err)
		return errorResponse(c, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleListEscrowTransactions returns the custody history of an order.
func (h *OrderHandler) HandleListEscrowTransactions(c *fiber.Ctx) error {
	orderID := c.Params("id")
	if _, err := h.orders.GetOrder(orderID, middleware.UserID(c), middleware.Role(c)); err != nil {
		return errorResponse(c, "Could not retrieve order", err)
	}
	txs, err := h.orders.ListEscrowTransactions(orderID)
	if err != nil {
		log.Printf("Error listing escrow transactions for order %s: %v", orderID, err)
		return errorResponse(c, "Could not retrieve escrow transactions", err)
	}
	return c.JSON(txs)
}

// ProofRequest is the proof-of-work submission payload. FileRefs carry
// in-band file contents keyed by name; binary uploads arrive base64-encoded
// by fiber's JSON parsing.
type ProofRequest struct {
	Description string            `json:"description"`
	Files       map[string][]byte `json:"files"`
}

// HandleSubmitProof lets the seller attach proof and move the order to
// proof_submitted.
func (h *OrderHandler) HandleSubmitProof(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req ProofRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing proof request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	var files []services.ProofFile
	for name, data := range req.Files {
		files = append(files, services.ProofFile{Name: name, Data: data})
	}

	order, err := h.proofs.Submit(orderID, middleware.UserID(c), req.Description, files)
	if err != nil {
		log.Printf("Error submitting proof for order %s: %v", orderID, err)
		return errorResponse(c, "Could not submit proof", err)
	}
	return c.JSON(fiber.Map{
		"message": "Proof submitted",
		"status":  order.Status,
		"order":   order,
	})
}

// HandleApproveDelivery lets the buyer accept the proof; escrow is released
// to the seller and the order completes.
func (h *OrderHandler) HandleApproveDelivery(c *fiber.Ctx) error {
	orderID := c.Params("id")
	order, err := h.orders.ApproveDelivery(c.Context(), orderID, middleware.UserID(c))
	if err != nil {
		log.Printf("Error approving delivery for order %s: %v", orderID, err)
		return errorResponse(c, "Could not approve delivery", err)
	}
	return c.JSON(fiber.Map{
		"message": "Delivery approved, escrow released",
		"status":  order.Status,
		"order":   order,
	})
}

// DisputeRequest is the dispute-raising payload.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

// HandleRaiseDispute lets either party dispute a non-terminal order.
func (h *OrderHandler) HandleRaiseDispute(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req DisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	order, err := h.orders.RaiseDispute(orderID, middleware.UserID(c), req.Reason)
	if err != nil {
		log.Printf("Error raising dispute for order %s: %v", orderID, err)
		return errorResponse(c, "Could not raise dispute", err)
	}
	return c.JSON(fiber.Map{
		"message": "Dispute raised",
		"status":  order.Status,
		"order":   order,
	})
}

// HandleResolveDispute is the admin mediation endpoint: refund or release.
func (h *OrderHandler) HandleResolveDispute(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req services.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	order, err := h.disputes.Resolve(c.Context(), orderID, middleware.UserID(c), req)
	if err != nil {
		log.Printf("Error resolving dispute for order %s: %v", orderID, err)
		return errorResponse(c, "Could not resolve dispute", err)
	}
	return c.JSON(fiber.Map{
		"message": "Dispute resolved: " + req.Action,
		"status":  order.Status,
		"order":   order,
	})
}

// NotesRequest is the admin annotation payload.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// HandleListReconciliation returns paid line items awaiting manual repair.
func (h *OrderHandler) HandleListReconciliation(c *fiber.Ctx) error {
	items, err := h.orders.ListReconciliation()
	if err != nil {
		log.Printf("Error listing reconciliation queue: %v", err)
		return errorResponse(c, "Could not retrieve reconciliation queue", err)
	}
	return c.JSON(items)
}

// HandleSetNotes records admin mediation reasoning on the order.
func (h *OrderHandler) HandleSetNotes(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req NotesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	order, err := h.orders.SetAdminNotes(orderID, middleware.UserID(c), req.Notes)
	if err != nil {
		log.Printf("Error setting notes for order %s: %v", orderID, err)
		return errorResponse(c, "Could not update notes", err)
	}
	return c.JSON(order)
}
