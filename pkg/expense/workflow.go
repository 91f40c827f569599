// Package expense implements the expense-status state machine, its
// transition table, and the guards each transition must satisfy, modeling
// allowed transitions as an explicit table rather than scattering state
// checks across handlers.
package expense

import (
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/kernel"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/store"
)

// Event is one of the events the state machine accepts.
type Event string

const (
	EventSubmit         Event = "submit"
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventResubmit       Event = "resubmit"
	EventMarkReimbursed Event = "mark-reimbursed"
)

// NotificationKind is one of the notification events this package emits.
type NotificationKind string

const (
	NotifySubmitted NotificationKind = "EXPENSE_SUBMITTED"
	NotifyApproved  NotificationKind = "EXPENSE_APPROVED"
	NotifyRejected  NotificationKind = "EXPENSE_REJECTED"
	NotifyReimbursed NotificationKind = "EXPENSE_REIMBURSED"
)

// Outcome carries the new expense state and the notification event to
// raise, so the caller (Service) can commit the row inside its
// transaction and dispatch the notification once that commit succeeds.
type Outcome struct {
	Expense store.Expense
	Notify  NotificationKind
}

// TransitionInput carries the event-specific fields a caller may supply.
// Unused fields for a given event are ignored.
type TransitionInput struct {
	RejectionReason string
}

// Apply validates and performs one transition against current, given the
// firing actor. It never mutates current in place; it returns the next
// state on success. Any event not legal from current.Status yields
// ErrInvalidTransition together with a zero Outcome, which callers
// discard.
func Apply(current store.Expense, event Event, actor kernel.Principal, in TransitionInput) (Outcome, error) {
	switch event {
	case EventSubmit:
		return applySubmit(current, actor)
	case EventApprove:
		return applyApprove(current, actor)
	case EventReject:
		return applyReject(current, actor, in)
	case EventResubmit:
		return applyResubmit(current, actor)
	case EventMarkReimbursed:
		return applyMarkReimbursed(current, actor)
	default:
		return Outcome{}, ErrInvalidTransition()
	}
}

func applySubmit(current store.Expense, actor kernel.Principal) (Outcome, error) {
	if current.Status != store.ExpenseDraft {
		return Outcome{}, ErrInvalidTransition()
	}
	if current.OwnerUsername != actor.Username {
		return Outcome{}, ErrForbidden()
	}
	if err := requireSubmittable(current); err != nil {
		return Outcome{}, err
	}

	now := time.Now().UTC()
	next := current
	next.Status = store.ExpenseSubmitted
	next.SubmittedAt = &now
	return Outcome{Expense: next, Notify: NotifySubmitted}, nil
}

// requireSubmittable enforces that all required fields are populated
// before a Draft can move to Submitted.
func requireSubmittable(e store.Expense) error {
	if e.Amount <= 0 {
		return ErrInvalidInput("amount must be positive")
	}
	if e.ExpenseDate.IsZero() {
		return ErrInvalidInput("expense date is required")
	}
	if e.ExpenseType == "" {
		return ErrInvalidInput("expense type is required")
	}
	if e.PaymentMethod == "" {
		return ErrInvalidInput("payment method is required")
	}
	return nil
}

// isApprovable reports whether current.Status is one of the two states
// approve/reject may fire from.
func isApprovable(status store.ExpenseStatus) bool {
	return status == store.ExpenseSubmitted || status == store.ExpenseResubmitted
}

func applyApprove(current store.Expense, actor kernel.Principal) (Outcome, error) {
	if !isApprovable(current.Status) {
		return Outcome{}, ErrInvalidTransition()
	}
	// Four-eyes: the owner is never authorised to approve, even if they
	// otherwise hold EXPENSE:APPROVE.
	if actor.Username == current.OwnerUsername {
		return Outcome{}, ErrForbidden()
	}
	if !actor.HasPermission(rbac.PermExpenseApprove) {
		return Outcome{}, ErrForbidden()
	}

	now := time.Now().UTC()
	approver := actor.Username
	next := current
	next.Status = store.ExpenseApproved
	next.ApprovedBy = &approver
	next.ApprovedAt = &now
	return Outcome{Expense: next, Notify: NotifyApproved}, nil
}

func applyReject(current store.Expense, actor kernel.Principal, in TransitionInput) (Outcome, error) {
	if !isApprovable(current.Status) {
		return Outcome{}, ErrInvalidTransition()
	}
	if actor.Username == current.OwnerUsername {
		return Outcome{}, ErrForbidden()
	}
	if !actor.HasPermission(rbac.PermExpenseApprove) {
		return Outcome{}, ErrForbidden()
	}
	if in.RejectionReason == "" {
		return Outcome{}, ErrInvalidInput("rejection reason is required")
	}

	next := current
	next.Status = store.ExpenseRejected
	next.RejectionReason = in.RejectionReason
	return Outcome{Expense: next, Notify: NotifyRejected}, nil
}

func applyResubmit(current store.Expense, actor kernel.Principal) (Outcome, error) {
	if current.Status != store.ExpenseRejected {
		return Outcome{}, ErrInvalidTransition()
	}
	if current.OwnerUsername != actor.Username {
		return Outcome{}, ErrForbidden()
	}

	next := current
	next.Status = store.ExpenseResubmitted
	next.ResubmittedCount++
	return Outcome{Expense: next, Notify: NotifySubmitted}, nil
}

func applyMarkReimbursed(current store.Expense, actor kernel.Principal) (Outcome, error) {
	if current.Status != store.ExpenseApproved {
		return Outcome{}, ErrInvalidTransition()
	}
	if !actor.HasPermission(rbac.PermExpenseApprove) {
		return Outcome{}, ErrForbidden()
	}

	now := time.Now().UTC()
	next := current
	next.Status = store.ExpenseReimbursed
	next.ReimbursedAt = &now
	return Outcome{Expense: next, Notify: NotifyReimbursed}, nil
}
