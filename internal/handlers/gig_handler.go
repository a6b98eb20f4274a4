package handlers

import (
	"fmt"
	"log"

	"gigmarket/internal/middleware"
	"gigmarket/internal/models"
	"gigmarket/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// GigHandler handles HTTP requests for gig listings.
type GigHandler struct {
	service  *services.GigService
	validate *validator.Validate
}

// NewGigHandler creates a new GigHandler.
func NewGigHandler(service *services.GigService) *GigHandler {
	return &GigHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the gig routes with the Fiber app.
func (h *GigHandler) RegisterRoutes(router fiber.Router) {
	gigRoutes := router.Group("/gigs")
	gigRoutes.Get("/", h.HandleGetGigs)
	gigRoutes.Get("/:id", h.HandleGetGigByID)
	gigRoutes.Post("/", h.HandleCreateGig)
	gigRoutes.Put("/:id", h.HandleUpdateGig)
	gigRoutes.Delete("/:id", h.HandleDeleteGig)
}

// HandleGetGigs retrieves all gigs.
func (h *GigHandler) HandleGetGigs(c *fiber.Ctx) error {
	gigs, err := h.service.GetAllGigs()
	if err != nil {
		log.Printf("Error getting all gigs: %v", err)
		return errorResponse(c, "Could not retrieve gigs", err)
	}
	return c.JSON(gigs)
}

// HandleGetGigByID retrieves a single gig by its ID.
func (h *GigHandler) HandleGetGigByID(c *fiber.Ctx) error {
	gigID := c.Params("id")
	gig, err := h.service.GetGigByID(gigID)
	if err != nil {
		log.Printf("Error getting gig by ID %s: %v", gigID, err)
		return errorResponse(c, "Could not retrieve gig", err)
	}
	return c.JSON(gig)
}

// HandleCreateGig creates a new gig owned by the authenticated seller.
func (h *GigHandler) HandleCreateGig(c *fiber.Ctx) error {
	var gig models.Gig
	if err := c.BodyParser(&gig); err != nil {
		log.Printf("Error parsing gig request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	gig.SellerID = middleware.UserID(c)

	if err := h.validate.Struct(gig); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}

	if err := h.service.CreateGig(&gig); err != nil {
		log.Printf("Error creating gig: %v", err)
		return errorResponse(c, "Could not create gig", err)
	}
	return c.Status(fiber.StatusCreated).JSON(gig)
}

// HandleUpdateGig updates an existing gig owned by the caller.
func (h *GigHandler) HandleUpdateGig(c *fiber.Ctx) error {
	var gig models.Gig
	if err := c.BodyParser(&gig); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	gig.ID = c.Params("id")

	if err := h.service.UpdateGig(&gig, middleware.UserID(c)); err != nil {
		log.Printf("Error updating gig %s: %v", gig.ID, err)
		return errorResponse(c, "Could not update gig", err)
	}
	return c.JSON(gig)
}

// HandleDeleteGig deletes a gig owned by the caller.
func (h *GigHandler) HandleDeleteGig(c *fiber.Ctx) error {
	gigID := c.Params("id")
	if err := h.service.DeleteGig(gigID, middleware.UserID(c)); err != nil {
		log.Printf("Error deleting gig %s: %v", gigID, err)
		return errorResponse(c, "Could not delete gig", err)
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Gig %s deleted successfully", gigID),
	})
}
