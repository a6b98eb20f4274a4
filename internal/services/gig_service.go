package services

import (
	"fmt"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
)

// GigService handles business logic related to gig listings.
type GigService struct {
	repo repositories.GigRepository
}

// NewGigService creates a new GigService.
func NewGigService(repo repositories.GigRepository) *GigService {
	return &GigService{
		repo: repo,
	}
}

// GetAllGigs retrieves all gigs.
func (s *GigService) GetAllGigs() ([]models.Gig, error) {
	return s.repo.GetAll()
}

// GetGigByID retrieves a single gig by its ID.
func (s *GigService) GetGigByID(id string) (*models.Gig, error) {
	return s.repo.GetByID(id)
}

// CreateGig creates a new gig owned by the seller.
func (s *GigService) CreateGig(gig *models.Gig) error {
	if gig.PriceSol <= 0 {
		return fmt.Errorf("%w: gig price must be positive", models.ErrValidation)
	}
	return s.repo.Create(gig)
}

// UpdateGig updates an existing gig; only its owner may do so.
func (s *GigService) UpdateGig(gig *models.Gig, sellerID string) error {
	existing, err := s.repo.GetByID(gig.ID)
	if err != nil {
		return err
	}
	if existing.SellerID != sellerID {
		return fmt.Errorf("%w: gig %s does not belong to seller %s", models.ErrNotAuthorized, gig.ID, sellerID)
	}
	gig.SellerID = existing.SellerID
	return s.repo.Update(gig)
}

// DeleteGig deletes a gig by its ID; only its owner may do so.
func (s *GigService) DeleteGig(id, sellerID string) error {
	existing, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if existing.SellerID != sellerID {
		return fmt.Errorf("%w: gig %s does not belong to seller %s", models.ErrNotAuthorized, id, sellerID)
	}
	return s.repo.Delete(id)
}
