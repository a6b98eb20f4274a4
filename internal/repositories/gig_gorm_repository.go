package repositories

import (
	"errors"
	"fmt"

	"gigmarket/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMGigRepository is a GORM implementation of GigRepository.
type GORMGigRepository struct {
	db *gorm.DB
}

// NewGORMGigRepository creates a new instance of GORMGigRepository.
func NewGORMGigRepository(db *gorm.DB) *GORMGigRepository {
	return &GORMGigRepository{
		db: db,
	}
}

// GetAll retrieves all gigs from the database.
func (r *GORMGigRepository) GetAll() ([]models.Gig, error) {
	var gigs []models.Gig
	if err := r.db.Find(&gigs).Error; err != nil {
		return nil, fmt.Errorf("failed to get all gigs: %w", err)
	}
	return gigs, nil
}

// GetByID retrieves a single gig by its ID from the database.
func (r *GORMGigRepository) GetByID(id string) (*models.Gig, error) {
	var gig models.Gig
	if err := r.db.First(&gig, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: gig %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get gig by ID %s: %w", id, err)
	}
	return &gig, nil
}

// Create creates a new gig in the database.
func (r *GORMGigRepository) Create(gig *models.Gig) error {
	if gig.ID == "" {
		gig.ID = uuid.New().String()
	}
	if err := r.db.Create(gig).Error; err != nil {
		return fmt.Errorf("failed to create gig: %w", err)
	}
	return nil
}

// Update updates an existing gig in the database.
func (r *GORMGigRepository) Update(gig *models.Gig) error {
	res := r.db.Save(gig) // Save will update all fields, including zero values
	if res.Error != nil {
		return fmt.Errorf("failed to update gig: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: gig %s", models.ErrNotFound, gig.ID)
	}
	return nil
}

// Delete removes a gig from the database by its ID.
func (r *GORMGigRepository) Delete(id string) error {
	res := r.db.Delete(&models.Gig{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete gig %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: gig %s", models.ErrNotFound, id)
	}
	return nil
}
