package repositories

import (
	"fmt"
	"sync"

	"gigmarket/internal/models"

	"github.com/google/uuid"
)

// MockGigRepository is an in-memory implementation of GigRepository.
type MockGigRepository struct {
	gigs map[string]models.Gig
	mu   sync.RWMutex
}

// NewMockGigRepository creates a new instance of MockGigRepository.
func NewMockGigRepository() *MockGigRepository {
	return &MockGigRepository{
		gigs: make(map[string]models.Gig),
	}
}

// GetAll returns all gigs.
func (r *MockGigRepository) GetAll() ([]models.Gig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gigList := make([]models.Gig, 0, len(r.gigs))
	for _, g := range r.gigs {
		gigList = append(gigList, g)
	}
	return gigList, nil
}

// GetByID returns a gig by its ID.
func (r *MockGigRepository) GetByID(id string) (*models.Gig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gig, ok := r.gigs[id]
	if !ok {
		return nil, fmt.Errorf("%w: gig %s", models.ErrNotFound, id)
	}
	return &gig, nil
}

// Create adds a new gig.
func (r *MockGigRepository) Create(gig *models.Gig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gig.ID == "" {
		gig.ID = uuid.New().String()
	}
	r.gigs[gig.ID] = *gig
	return nil
}

// Update modifies an existing gig.
func (r *MockGigRepository) Update(gig *models.Gig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gigs[gig.ID]; !ok {
		return fmt.Errorf("%w: gig %s", models.ErrNotFound, gig.ID)
	}
	r.gigs[gig.ID] = *gig
	return nil
}

// Delete removes a gig.
func (r *MockGigRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gigs[id]; !ok {
		return fmt.Errorf("%w: gig %s", models.ErrNotFound, id)
	}
	delete(r.gigs, id)
	return nil
}
