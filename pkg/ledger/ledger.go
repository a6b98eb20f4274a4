package ledger

import (
	"context"
	"errors"
	"time"
)

// Transfer describes a value movement to be submitted to the ledger.
// Amounts are expressed in SOL; the gateway converts to lamports.
type Transfer struct {
	From      string
	To        string
	AmountSol float64
}

const lamportsPerSol = 1_000_000_000

// Lamports returns the transfer amount in the ledger's native unit.
func (t Transfer) Lamports() uint64 {
	return uint64(t.AmountSol * lamportsPerSol)
}

// ConfirmationStatus is the typed outcome of waiting for a transaction.
type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusTimedOut  ConfirmationStatus = "timed_out"
	StatusReverted  ConfirmationStatus = "reverted"
)

// Confirmation reports the final observed state of a submitted transaction.
type Confirmation struct {
	Signature string
	Status    ConfirmationStatus
	Slot      uint64
}

// Gateway errors.
var (
	// ErrRejected means the signer refused the transaction. Terminal;
	// never retried silently.
	ErrRejected = errors.New("transaction rejected by signer")

	// ErrUnavailable means the ledger network could not be reached.
	// Transient; callers retry with backoff.
	ErrUnavailable = errors.New("ledger network unavailable")

	// ErrTimedOut means confirmation polling exhausted its bound. The
	// transaction may still land later.
	ErrTimedOut = errors.New("confirmation timed out")

	// ErrReverted means the ledger executed and rejected the transaction.
	ErrReverted = errors.New("transaction reverted on ledger")
)

// Gateway is the thin interface to the external ledger: build and submit a
// value transfer, then poll for its confirmation. Implementations must treat
// every call as potentially slow and honor context cancellation.
type Gateway interface {
	// Submit sends the transfer and returns its transaction signature.
	// Network errors are retried internally with exponential backoff up to
	// three attempts; a rejection is surfaced immediately.
	Submit(ctx context.Context, transfer Transfer) (string, error)

	// Confirm polls the ledger until the transaction is confirmed, reverted,
	// or the timeout elapses. A timeout returns ErrTimedOut alongside a
	// Confirmation with StatusTimedOut so callers can offer manual recovery.
	Confirm(ctx context.Context, signature string, timeout time.Duration) (Confirmation, error)
}
