package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is matched by every TransitionError.
var ErrInvalidTransition = errors.New("invalid invoice status transition")

// TransitionError reports a rejected edge.
type TransitionError struct {
	From InvoiceStatus
	To   InvoiceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid invoice status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Transition is one crossed edge of the invoice state machine.
type Transition struct {
	From InvoiceStatus `json:"from"`
	To   InvoiceStatus `json:"to"`
	At   time.Time     `json:"at"`
}

var invoiceEdges = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending:   {InvoiceStatusConfirmed, InvoiceStatusFailed},
	InvoiceStatusConfirmed: {InvoiceStatusCompleted, InvoiceStatusFailed},
}

// CanTransition reports whether from -> to is a legal edge. Same-state is not.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range invoiceEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Apply moves inv along one legal edge. Only Status and UpdatedAt change.
// UpdatedAt never moves backwards and never precedes CreatedAt.
func Apply(inv *Invoice, to InvoiceStatus, at time.Time) (Transition, error) {
	if !CanTransition(inv.Status, to) {
		return Transition{}, &TransitionError{From: inv.Status, To: to}
	}

	if at.Before(inv.UpdatedAt) {
		at = inv.UpdatedAt
	}
	if at.Before(inv.CreatedAt) {
		at = inv.CreatedAt
	}

	t := Transition{From: inv.Status, To: to, At: at}
	inv.Status = to
	inv.UpdatedAt = at
	return t, nil
}

// PathTo returns the edges needed to walk from toward target, in order.
// It is empty when target is unreachable or already reached.
func PathTo(from, target InvoiceStatus) []InvoiceStatus {
	if CanTransition(from, target) {
		return []InvoiceStatus{target}
	}
	if from == InvoiceStatusPending && target == InvoiceStatusCompleted {
		return []InvoiceStatus{InvoiceStatusConfirmed, InvoiceStatusCompleted}
	}
	return nil
}

// NextPaidStatus is the single forward step an operator "mark paid" takes.
func NextPaidStatus(from InvoiceStatus) (InvoiceStatus, bool) {
	switch from {
	case InvoiceStatusPending:
		return InvoiceStatusConfirmed, true
	case InvoiceStatusConfirmed:
		return InvoiceStatusCompleted, true
	default:
		return "", false
	}
}

// LedgerDeltaFor maps a crossed edge to the balance change it causes.
// Pending tracks confirmed-but-not-completed amounts only, so a Pending
// invoice failing leaves the ledger untouched.
func LedgerDeltaFor(t Transition, amount int64) LedgerDelta {
	switch {
	case t.To == InvoiceStatusConfirmed:
		return LedgerDelta{Pending: amount}
	case t.From == InvoiceStatusConfirmed && t.To == InvoiceStatusCompleted:
		return LedgerDelta{Pending: -amount, Confirmed: amount, Total: amount}
	case t.From == InvoiceStatusConfirmed && t.To == InvoiceStatusFailed:
		return LedgerDelta{Pending: -amount}
	default:
		return LedgerDelta{}
	}
}
