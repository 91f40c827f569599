package expense_test

import (
	"context"
	"testing"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/expense"
	"github.com/ammonsd/activitytracking-core/pkg/kernel"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	byID    map[int64]store.Expense
	nextID  int64
	deleted []int64
}

func newFakeRepo(existing ...store.Expense) *fakeRepo {
	r := &fakeRepo{byID: make(map[int64]store.Expense), nextID: 100}
	for _, e := range existing {
		r.byID[e.ID] = e
	}
	return r
}

func (r *fakeRepo) FindByID(ctx context.Context, id int64) (*store.Expense, error) {
	e, ok := r.byID[id]
	if !ok {
		return nil, store.ErrExpenseNotFoundErr()
	}
	return &e, nil
}

func (r *fakeRepo) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]store.Expense, int, error) {
	var out []store.Expense
	for _, e := range r.byID {
		if e.OwnerUsername == owner {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (r *fakeRepo) ListByStatus(ctx context.Context, status store.ExpenseStatus, limit, offset int) ([]store.Expense, int, error) {
	var out []store.Expense
	for _, e := range r.byID {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (r *fakeRepo) Save(ctx context.Context, e store.Expense) (int64, error) {
	if e.ID == 0 {
		r.nextID++
		e.ID = r.nextID
	}
	r.byID[e.ID] = e
	return e.ID, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.byID[id]; !ok {
		return store.ErrExpenseNotFoundErr()
	}
	delete(r.byID, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) WithLock(ctx context.Context, id int64, fn func(current store.Expense) (store.Expense, error)) (store.Expense, error) {
	current, ok := r.byID[id]
	if !ok {
		return store.Expense{}, store.ErrExpenseNotFoundErr()
	}
	next, err := fn(current)
	if err != nil {
		return store.Expense{}, err
	}
	next.ID = id
	r.byID[id] = next
	return next, nil
}

type fakeNotifier struct {
	notified []expense.NotificationKind
}

func (f *fakeNotifier) NotifyExpenseEvent(ctx context.Context, kind expense.NotificationKind, e store.Expense) error {
	f.notified = append(f.notified, kind)
	return nil
}

func ownerPrincipal(username string) kernel.Principal {
	return kernel.Principal{Username: username, Role: rbac.RoleUser, Permissions: rbac.SeedRoles[rbac.RoleUser]}
}

func approverPrincipal(username string) kernel.Principal {
	return kernel.Principal{Username: username, Role: rbac.RoleExpenseAdmin, Permissions: rbac.SeedRoles[rbac.RoleExpenseAdmin]}
}

func TestService_Create_RequiresPermission(t *testing.T) {
	repo := newFakeRepo()
	svc := expense.NewService(repo, &fakeNotifier{})

	noPerms := kernel.Principal{Username: "nobody", Role: "NONE"}
	_, err := svc.Create(context.Background(), noPerms, expense.Draft{Amount: 10})

	require.Error(t, err)
}

func TestService_Create_RejectsNonPositiveAmount(t *testing.T) {
	repo := newFakeRepo()
	svc := expense.NewService(repo, &fakeNotifier{})

	_, err := svc.Create(context.Background(), ownerPrincipal("alice"), expense.Draft{Amount: 0})

	require.Error(t, err)
}

func TestService_Create_Success(t *testing.T) {
	repo := newFakeRepo()
	svc := expense.NewService(repo, &fakeNotifier{})

	e, err := svc.Create(context.Background(), ownerPrincipal("alice"), expense.Draft{
		Amount: 42.50, ExpenseDate: time.Now(), ExpenseType: "travel", PaymentMethod: "card",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice", e.OwnerUsername)
	assert.Equal(t, store.ExpenseDraft, e.Status)
	assert.NotZero(t, e.ID)
}

func TestService_Get_HidesOtherOwnersExpenseAsNotFound(t *testing.T) {
	repo := newFakeRepo(store.Expense{ID: 1, OwnerUsername: "alice", Status: store.ExpenseDraft})
	svc := expense.NewService(repo, &fakeNotifier{})

	_, err := svc.Get(context.Background(), ownerPrincipal("bob"), 1)

	require.Error(t, err)
}

func TestService_Get_OwnerCanRead(t *testing.T) {
	repo := newFakeRepo(store.Expense{ID: 1, OwnerUsername: "alice", Status: store.ExpenseDraft})
	svc := expense.NewService(repo, &fakeNotifier{})

	e, err := svc.Get(context.Background(), ownerPrincipal("alice"), 1)

	require.NoError(t, err)
	assert.Equal(t, int64(1), e.ID)
}

func TestService_Edit_RejectsNonDraftStatus(t *testing.T) {
	repo := newFakeRepo(store.Expense{ID: 1, OwnerUsername: "alice", Status: store.ExpenseSubmitted})
	svc := expense.NewService(repo, &fakeNotifier{})

	_, err := svc.Edit(context.Background(), ownerPrincipal("alice"), 1, expense.Draft{Amount: 10})

	require.Error(t, err)
}

func TestService_Edit_Success(t *testing.T) {
	repo := newFakeRepo(store.Expense{ID: 1, OwnerUsername: "alice", Status: store.ExpenseDraft, Amount: 10})
	svc := expense.NewService(repo, &fakeNotifier{})

	e, err := svc.Edit(context.Background(), ownerPrincipal("alice"), 1, expense.Draft{Amount: 20})

	require.NoError(t, err)
	assert.Equal(t, 20.0, e.Amount)
}

func TestService_Delete_RejectsNonDraft(t *testing.T) {
	repo := newFakeRepo(store.Expense{ID: 1, OwnerUsername: "alice", Status: store.ExpenseApproved})
	svc := expense.NewService(repo, &fakeNotifier{})

	err := svc.Delete(context.Background(), ownerPrincipal("alice"), 1)

	require.Error(t, err)
}

func TestService_Delete_Success(t *testing.T) {
	repo := newFakeRepo(store.Expense{ID: 1, OwnerUsername: "alice", Status: store.ExpenseDraft})
	svc := expense.NewService(repo, &fakeNotifier{})

	err := svc.Delete(context.Background(), ownerPrincipal("alice"), 1)

	require.NoError(t, err)
	assert.Contains(t, repo.deleted, int64(1))
}

func TestService_Transition_DispatchesNotificationOnSuccess(t *testing.T) {
	repo := newFakeRepo(store.Expense{
		ID: 1, OwnerUsername: "alice", Status: store.ExpenseDraft,
		Amount: 10, ExpenseDate: time.Now(), ExpenseType: "travel", PaymentMethod: "card",
	})
	notifier := &fakeNotifier{}
	svc := expense.NewService(repo, notifier)

	_, err := svc.Transition(context.Background(), ownerPrincipal("alice"), 1, expense.EventSubmit, expense.TransitionInput{})

	require.NoError(t, err)
	assert.Len(t, notifier.notified, 1)
}

func TestService_Transition_FourEyesBlocksOwnerApproval(t *testing.T) {
	repo := newFakeRepo(store.Expense{
		ID: 1, OwnerUsername: "alice", Status: store.ExpenseSubmitted,
		Amount: 10, ExpenseDate: time.Now(), ExpenseType: "travel", PaymentMethod: "card",
	})
	svc := expense.NewService(repo, &fakeNotifier{})

	_, err := svc.Transition(context.Background(), approverPrincipal("alice"), 1, expense.EventApprove, expense.TransitionInput{})

	require.Error(t, err)
}
