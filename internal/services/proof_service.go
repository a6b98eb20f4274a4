package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
	"gigmarket/pkg/rabbitmq"
	"gigmarket/pkg/storage"
)

// ProofFile is one file attached to a proof-of-work submission.
type ProofFile struct {
	Name string
	Data []byte
}

// ProofService handles proof-of-work submissions by sellers.
type ProofService struct {
	orderRepo repositories.OrderRepository
	uploader  storage.Uploader
	publisher EventPublisher
	nowFn     func() time.Time
}

// NewProofService creates a new ProofService.
func NewProofService(orderRepo repositories.OrderRepository, uploader storage.Uploader, publisher EventPublisher) *ProofService {
	return &ProofService{
		orderRepo: orderRepo,
		uploader:  uploader,
		publisher: publisher,
		nowFn:     time.Now,
	}
}

// Submit attaches a description and optional files to an order and moves it
// to proof_submitted. The file set is atomic: if any upload fails, the whole
// submission fails and no partial file list is persisted.
func (s *ProofService) Submit(orderID, sellerID, description string, files []ProofFile) (*models.Order, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: proof description must not be empty", models.ErrValidation)
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != sellerID {
		return nil, fmt.Errorf("%w: only the seller may submit proof", models.ErrNotAuthorized)
	}
	if err := models.CheckTransition(order.Status, models.StatusProofSubmitted); err != nil {
		return nil, err
	}

	// Upload everything before touching the order so a failure leaves the
	// record untouched.
	var fileURLs []string
	for _, file := range files {
		url, err := s.uploader.Upload(file.Name, file.Data)
		if err != nil {
			return nil, fmt.Errorf("proof upload for %s failed, submission aborted: %w", file.Name, err)
		}
		fileURLs = append(fileURLs, url)
	}

	now := s.nowFn()
	order.Status = models.StatusProofSubmitted
	order.ProofDescription = description
	order.ProofFiles = fileURLs
	order.DeliveredAt = &now
	if err := s.orderRepo.UpdateTransition(order); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderEvent(rabbitmq.EventProofSubmitted, map[string]interface{}{
			"orderID":  order.ID,
			"buyerID":  order.BuyerID,
			"sellerID": order.SellerID,
			"files":    len(fileURLs),
		}); err != nil {
			log.Printf("Warning: failed to publish %s event: %v", rabbitmq.EventProofSubmitted, err)
		}
	}
	return order, nil
}
