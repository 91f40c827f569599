package expense

import (
	"context"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/kernel"
	"github.com/ammonsd/activitytracking-core/pkg/logx"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/store"
)

// Repository is the subset of store.ExpenseRepository the Service needs.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*store.Expense, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]store.Expense, int, error)
	ListByStatus(ctx context.Context, status store.ExpenseStatus, limit, offset int) ([]store.Expense, int, error)
	Save(ctx context.Context, e store.Expense) (int64, error)
	Delete(ctx context.Context, id int64) error
	WithLock(ctx context.Context, id int64, fn func(current store.Expense) (store.Expense, error)) (store.Expense, error)
}

// Notifier is the Notification Dispatcher's contract as consumed by the
// workflow engine: emit is synchronous with respect to the transition
// completing, never with respect to delivery.
type Notifier interface {
	NotifyExpenseEvent(ctx context.Context, kind NotificationKind, e store.Expense) error
}

// Draft is the input shape for create/edit — a subset of store.Expense's
// fields, excluding the role-gated ones that only transitions may set.
type Draft struct {
	ExpenseDate   time.Time
	Amount        float64
	Client        string
	Project       string
	ExpenseType   string
	PaymentMethod string
	Vendor        string
	Description   string
	ReceiptRef    string
}

type Service struct {
	repo     Repository
	notifier Notifier
}

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// Create starts a new expense in Draft, owned by the actor.
func (s *Service) Create(ctx context.Context, actor kernel.Principal, d Draft) (store.Expense, error) {
	if !actor.HasPermission(rbac.PermExpenseCreate) {
		return store.Expense{}, ErrForbidden()
	}
	if d.Amount <= 0 {
		return store.Expense{}, ErrInvalidInput("amount must be positive")
	}

	e := store.Expense{
		OwnerUsername: actor.Username,
		ExpenseDate:   d.ExpenseDate,
		Amount:        d.Amount,
		Client:        d.Client,
		Project:       d.Project,
		ExpenseType:   d.ExpenseType,
		PaymentMethod: d.PaymentMethod,
		Vendor:        d.Vendor,
		Description:   d.Description,
		ReceiptRef:    d.ReceiptRef,
		Status:        store.ExpenseDraft,
	}

	id, err := s.repo.Save(ctx, e)
	if err != nil {
		return store.Expense{}, err
	}
	e.ID = id
	return e, nil
}

// Get hides ownership: a non-owner, non-admin caller receives NOT_FOUND
// rather than FORBIDDEN, so the record's existence is never leaked.
func (s *Service) Get(ctx context.Context, actor kernel.Principal, id int64) (store.Expense, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return store.Expense{}, ErrNotFound()
	}
	if !actor.OwnsOrAdmin(e.OwnerUsername, rbac.PermExpenseAdmin) {
		return store.Expense{}, ErrNotFound()
	}
	return *e, nil
}

// List returns the actor's own expenses, or — for holders of
// EXPENSE:ADMIN — every expense in the given status (approver queues).
// page is 1-based; the result's Page.Pages lets the caller know whether
// HasNext is worth offering without a second count query.
func (s *Service) List(ctx context.Context, actor kernel.Principal, status store.ExpenseStatus, page, pageSize int) (kernel.Paginated[store.Expense], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var items []store.Expense
	var total int
	var err error
	if status != "" && actor.HasPermission(rbac.PermExpenseAdmin) {
		items, total, err = s.repo.ListByStatus(ctx, status, pageSize, offset)
	} else {
		items, total, err = s.repo.ListByOwner(ctx, actor.Username, pageSize, offset)
	}
	if err != nil {
		return kernel.Paginated[store.Expense]{}, err
	}
	return kernel.NewPaginated(items, page, pageSize, total), nil
}

// Edit updates only non-approval fields of a Draft expense; the caller
// must own the expense or hold admin permission.
func (s *Service) Edit(ctx context.Context, actor kernel.Principal, id int64, d Draft) (store.Expense, error) {
	result, err := s.repo.WithLock(ctx, id, func(current store.Expense) (store.Expense, error) {
		if !actor.OwnsOrAdmin(current.OwnerUsername, rbac.PermExpenseAdmin) {
			return store.Expense{}, ErrNotFound()
		}
		if current.Status != store.ExpenseDraft {
			return store.Expense{}, ErrInvalidTransition()
		}
		if d.Amount <= 0 {
			return store.Expense{}, ErrInvalidInput("amount must be positive")
		}

		next := current
		next.ExpenseDate = d.ExpenseDate
		next.Amount = d.Amount
		next.Client = d.Client
		next.Project = d.Project
		next.ExpenseType = d.ExpenseType
		next.PaymentMethod = d.PaymentMethod
		next.Vendor = d.Vendor
		next.Description = d.Description
		next.ReceiptRef = d.ReceiptRef
		return next, nil
	})
	return result, err
}

// Delete removes a Draft expense. The caller is responsible for invoking
// the receipt blob store's delete against e.ReceiptRef; this method only
// removes the row.
func (s *Service) Delete(ctx context.Context, actor kernel.Principal, id int64) error {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ErrNotFound()
	}
	if !actor.OwnsOrAdmin(e.OwnerUsername, rbac.PermExpenseAdmin) {
		return ErrNotFound()
	}
	if e.Status != store.ExpenseDraft {
		return ErrInvalidTransition()
	}
	return s.repo.Delete(ctx, id)
}

// Transition fires event against expense id as actor, inside one
// serializable unit of work, then dispatches the resulting notification.
// A delivery failure is logged but never rolls back the
// already-committed transition.
func (s *Service) Transition(ctx context.Context, actor kernel.Principal, id int64, event Event, in TransitionInput) (store.Expense, error) {
	var notify NotificationKind

	result, err := s.repo.WithLock(ctx, id, func(current store.Expense) (store.Expense, error) {
		outcome, err := Apply(current, event, actor, in)
		if err != nil {
			return store.Expense{}, err
		}
		notify = outcome.Notify
		return outcome.Expense, nil
	})
	if err != nil {
		return store.Expense{}, err
	}

	if notify != "" && s.notifier != nil {
		if err := s.notifier.NotifyExpenseEvent(ctx, notify, result); err != nil {
			logx.WithError(err).WithField("expense_id", id).Error("failed to dispatch expense notification")
		}
	}
	return result, nil
}
