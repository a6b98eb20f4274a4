package services

import (
	"context"
	"errors"
	"log"
	"time"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
)

// AutoReleaseService advances stalled orders: proof submitted, no dispute,
// and no buyer action for the whole release window. It guarantees sellers
// are paid even when buyers go inactive.
type AutoReleaseService struct {
	orderRepo repositories.OrderRepository
	orders    *OrderService
	window    time.Duration
	interval  time.Duration
	nowFn     func() time.Time
}

// NewAutoReleaseService creates the timer with the given release window
// (default 7 days) and scan interval (default hourly).
func NewAutoReleaseService(orderRepo repositories.OrderRepository, orders *OrderService,
	window, interval time.Duration) *AutoReleaseService {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &AutoReleaseService{
		orderRepo: orderRepo,
		orders:    orders,
		window:    window,
		interval:  interval,
		nowFn:     time.Now,
	}
}

// Run executes the scan loop until the context is cancelled.
func (s *AutoReleaseService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Auto-release timer started (window %s, interval %s)", s.window, s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Auto-release timer stopped")
			return
		case <-ticker.C:
			released, err := s.RunOnce(ctx)
			if err != nil {
				log.Printf("Auto-release scan failed: %v", err)
			} else if released > 0 {
				log.Printf("Auto-released %d order(s)", released)
			}
		}
	}
}

// RunOnce scans for eligible orders and releases them, returning how many it
// advanced. The scan also picks up orders already claimed into
// approved_for_release whose payout never landed, so a ledger outage delays a
// release instead of wedging it. Disputed orders never match the scan; the
// version check on the claim makes it single-winner, so concurrent timer
// instances (or a racing buyer approval) cannot double-apply.
func (s *AutoReleaseService) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.nowFn().Add(-s.window)
	candidates, err := s.orderRepo.FindAutoReleasable(cutoff)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range candidates {
		order := candidates[i]
		if order.Status == models.StatusProofSubmitted {
			err := s.orders.Transition(&order, models.StatusApprovedForRelease, nil)
			if err != nil {
				if errors.Is(err, models.ErrVersionConflict) || errors.Is(err, models.ErrInvalidTransition) {
					// Another writer (buyer, admin, or a concurrent timer) got
					// there first. Skip.
					continue
				}
				return released, err
			}
		}
		if _, err := s.orders.ExecuteRelease(ctx, &order, ""); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				continue
			}
			log.Printf("Auto-release payout failed for order %s: %v", order.ID, err)
			continue
		}
		released++
	}
	return released, nil
}
