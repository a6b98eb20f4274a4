package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockGateway is an in-memory Gateway for tests and for running the server
// without a live ledger endpoint. Submitted transfers confirm immediately
// unless a failure is injected.
type MockGateway struct {
	mu        sync.Mutex
	seq       int
	transfers map[string]Transfer

	// SubmitErr, when set, fails every Submit call with this error.
	SubmitErr error
	// ConfirmErr, when set, fails every Confirm call with this error.
	ConfirmErr error
	// SubmitHook, when set, runs before each transfer is recorded; an error
	// fails the Submit call.
	SubmitHook func(Transfer) error
	// LastConfirmTimeout records the timeout passed to the most recent
	// Confirm call.
	LastConfirmTimeout time.Duration
}

// NewMockGateway creates an empty mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		transfers: make(map[string]Transfer),
	}
}

// Submit records the transfer and returns a synthetic signature.
func (m *MockGateway) Submit(_ context.Context, transfer Transfer) (string, error) {
	m.mu.Lock()
	submitErr, hook := m.SubmitErr, m.SubmitHook
	m.mu.Unlock()
	if submitErr != nil {
		return "", submitErr
	}
	// The hook runs unlocked so it may call back into the gateway.
	if hook != nil {
		if err := hook(transfer); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	signature := fmt.Sprintf("mock-signature-%d-%d", time.Now().UnixNano(), m.seq)
	m.transfers[signature] = transfer
	return signature, nil
}

// Confirm reports any recorded signature as confirmed.
func (m *MockGateway) Confirm(_ context.Context, signature string, timeout time.Duration) (Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastConfirmTimeout = timeout
	if m.ConfirmErr != nil {
		return Confirmation{Signature: signature, Status: StatusTimedOut}, m.ConfirmErr
	}
	if _, ok := m.transfers[signature]; !ok {
		// Unknown signatures are assumed to be externally submitted
		// transfers (manual confirmation path) and confirm as well.
		m.transfers[signature] = Transfer{}
	}
	return Confirmation{Signature: signature, Status: StatusConfirmed, Slot: uint64(m.seq)}, nil
}

// Submitted returns the transfer recorded for a signature.
func (m *MockGateway) Submitted(signature string) (Transfer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[signature]
	return t, ok
}
