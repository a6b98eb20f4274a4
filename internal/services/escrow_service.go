package services

import (
	"context"
	"fmt"
	"time"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
	"gigmarket/pkg/ledger"
)

// EscrowService executes custody movements out of the pooled escrow account.
// It only talks to the ledger; escrow bookkeeping (the append-only
// transaction records) is written by the callers that own the order state.
type EscrowService struct {
	gateway        ledger.Gateway
	userRepo       repositories.UserRepository
	escrowAccount  string
	confirmTimeout time.Duration
}

// NewEscrowService creates a new EscrowService bound to the fixed escrow
// account address. A non-positive confirmTimeout falls back to 60 seconds.
func NewEscrowService(gateway ledger.Gateway, userRepo repositories.UserRepository,
	escrowAccount string, confirmTimeout time.Duration) *EscrowService {
	if confirmTimeout <= 0 {
		confirmTimeout = 60 * time.Second
	}
	return &EscrowService{
		gateway:        gateway,
		userRepo:       userRepo,
		escrowAccount:  escrowAccount,
		confirmTimeout: confirmTimeout,
	}
}

// Account returns the pooled escrow account address buyers pay into.
func (s *EscrowService) Account() string {
	return s.escrowAccount
}

// PayOut transfers amountSol from the escrow account to the user's wallet and
// waits for ledger confirmation. Returns the confirmed transaction signature.
func (s *EscrowService) PayOut(ctx context.Context, userID string, amountSol float64) (string, error) {
	if amountSol <= 0 {
		return "", fmt.Errorf("%w: payout amount must be positive", models.ErrValidation)
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user.WalletAddress == "" {
		return "", fmt.Errorf("%w: user %s has no wallet address", models.ErrValidation, userID)
	}

	signature, err := s.gateway.Submit(ctx, ledger.Transfer{
		From:      s.escrowAccount,
		To:        user.WalletAddress,
		AmountSol: amountSol,
	})
	if err != nil {
		return "", fmt.Errorf("%w: escrow payout submit failed: %v", models.ErrLedgerUnavailable, err)
	}

	if _, err := s.gateway.Confirm(ctx, signature, s.confirmTimeout); err != nil {
		// The transfer was submitted; surface the signature so the movement
		// can be reconciled rather than re-sent.
		return signature, fmt.Errorf("%w: payout %s unconfirmed: %v", models.ErrConfirmationTimeout, signature, err)
	}
	return signature, nil
}

// VerifyDeposit confirms that a buyer-submitted payment signature has landed
// on the ledger. Confirmation, not submission, is the trust boundary.
func (s *EscrowService) VerifyDeposit(ctx context.Context, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: transaction signature is required", models.ErrValidation)
	}
	conf, err := s.gateway.Confirm(ctx, signature, s.confirmTimeout)
	if err != nil {
		switch conf.Status {
		case ledger.StatusTimedOut:
			return fmt.Errorf("%w: signature %s", models.ErrConfirmationTimeout, signature)
		case ledger.StatusReverted:
			// Terminal: the ledger executed and rejected the transfer.
			return fmt.Errorf("%w: payment %s reverted on ledger", models.ErrValidation, signature)
		default:
			return fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
		}
	}
	return nil
}
