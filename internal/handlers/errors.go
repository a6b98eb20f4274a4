package handlers

import (
	"errors"

	"gigmarket/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errorResponse maps service errors onto HTTP statuses. Conflicts from the
// optimistic lock and illegal transitions both come back as 409 so the
// caller knows to refresh state and re-decide.
func errorResponse(c *fiber.Ctx, message string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotAuthorized):
		status = fiber.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrVersionConflict):
		status = fiber.StatusConflict
	case errors.Is(err, models.ErrConfirmationTimeout):
		// Recoverable: the transfer may still land; retry or contact support.
		status = fiber.StatusAccepted
	case errors.Is(err, models.ErrLedgerUnavailable):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
