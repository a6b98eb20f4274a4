package models

import "fmt"

// OrderStatus is the closed set of order lifecycle states. The persisted
// string values are part of the external interface and must not change.
type OrderStatus string

const (
	StatusPending            OrderStatus = "pending"
	StatusInProgress         OrderStatus = "in_progress"
	StatusAwaitingProof      OrderStatus = "awaiting_proof"
	StatusDelivered          OrderStatus = "delivered"
	StatusProofSubmitted     OrderStatus = "proof_submitted"
	StatusApprovedForRelease OrderStatus = "approved_for_release"
	StatusCompleted          OrderStatus = "completed"
	StatusCancelled          OrderStatus = "cancelled"
	StatusDisputed           OrderStatus = "disputed"
)

// validTransitions is the single source of truth for the order lifecycle.
// A dispute may be raised from any non-terminal state; that rule lives in
// CanTransition rather than being enumerated per state here.
var validTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:            {StatusInProgress, StatusCancelled},
	StatusInProgress:         {StatusAwaitingProof, StatusDelivered, StatusProofSubmitted},
	StatusAwaitingProof:      {StatusProofSubmitted},
	StatusDelivered:          {StatusProofSubmitted, StatusApprovedForRelease},
	StatusProofSubmitted:     {StatusApprovedForRelease},
	StatusApprovedForRelease: {StatusCompleted},
	StatusDisputed:           {StatusApprovedForRelease, StatusCancelled},
}

// Valid reports whether s is one of the known status values.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusAwaitingProof, StatusDelivered,
		StatusProofSubmitted, StatusApprovedForRelease, StatusCompleted,
		StatusCancelled, StatusDisputed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether moving from -> to is a legal lifecycle step.
func CanTransition(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusDisputed {
		// Any post-payment, non-terminal order can be disputed.
		return from != StatusDisputed
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition (wrapped with both states)
// when the step is not legal.
func CheckTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
