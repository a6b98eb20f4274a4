package handlers

import (
	"log"

	"gigmarket/internal/middleware"
	"gigmarket/internal/models"
	"gigmarket/internal/repositories"

	"github.com/gofiber/fiber/v2"
)

// CartHandler handles HTTP requests for the buyer's cart.
type CartHandler struct {
	cartRepo repositories.CartRepository
	gigRepo  repositories.GigRepository
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(cartRepo repositories.CartRepository, gigRepo repositories.GigRepository) *CartHandler {
	return &CartHandler{
		cartRepo: cartRepo,
		gigRepo:  gigRepo,
	}
}

// RegisterRoutes registers the cart routes with the Fiber app.
func (h *CartHandler) RegisterRoutes(router fiber.Router) {
	cartRoutes := router.Group("/cart")
	cartRoutes.Get("/", h.HandleListCart)
	cartRoutes.Post("/", h.HandleAddItem)
	cartRoutes.Patch("/:id", h.HandleUpdateQuantity)
	cartRoutes.Delete("/:id", h.HandleRemoveItem)
}

// HandleListCart returns the caller's cart items.
func (h *CartHandler) HandleListCart(c *fiber.Ctx) error {
	items, err := h.cartRepo.ListByUser(middleware.UserID(c))
	if err != nil {
		log.Printf("Error listing cart: %v", err)
		return errorResponse(c, "Could not retrieve cart", err)
	}
	return c.JSON(items)
}

// AddCartItemRequest is the add-to-cart payload.
type AddCartItemRequest struct {
	GigID        string `json:"gig_id"`
	PackageIndex *int   `json:"package_index"`
	Quantity     int    `json:"quantity"`
}

// HandleAddItem adds one gig (and optional package tier) to the cart.
func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var req AddCartItemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	// The gig must exist before it can be carted.
	if _, err := h.gigRepo.GetByID(req.GigID); err != nil {
		return errorResponse(c, "Could not add item to cart", err)
	}

	item := models.CartItem{
		UserID:       middleware.UserID(c),
		GigID:        req.GigID,
		PackageIndex: req.PackageIndex,
		Quantity:     req.Quantity,
	}
	if err := h.cartRepo.Add(&item); err != nil {
		log.Printf("Error adding cart item: %v", err)
		return errorResponse(c, "Could not add item to cart", err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// UpdateQuantityRequest is the cart quantity update payload.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// HandleUpdateQuantity changes the quantity of one cart line item.
func (h *CartHandler) HandleUpdateQuantity(c *fiber.Ctx) error {
	var req UpdateQuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.cartRepo.UpdateQuantity(c.Params("id"), req.Quantity); err != nil {
		return errorResponse(c, "Could not update cart item", err)
	}
	return c.JSON(fiber.Map{"message": "Cart item updated"})
}

// HandleRemoveItem removes one cart line item.
func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	if err := h.cartRepo.Remove(c.Params("id")); err != nil {
		return errorResponse(c, "Could not remove cart item", err)
	}
	return c.JSON(fiber.Map{"message": "Cart item removed"})
}
