package repositories

import (
	"gigmarket/internal/models"
)

// GigRepository defines the interface for gig listing data access.
type GigRepository interface {
	GetAll() ([]models.Gig, error)
	GetByID(id string) (*models.Gig, error)
	Create(gig *models.Gig) error
	Update(gig *models.Gig) error
	Delete(id string) error
}
