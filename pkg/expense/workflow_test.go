package expense_test

import (
	"testing"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
	"github.com/ammonsd/activitytracking-core/pkg/expense"
	"github.com/ammonsd/activitytracking-core/pkg/kernel"
	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertErrCode(t *testing.T, err error, code *errx.ErrorCode) {
	t.Helper()
	xerr, ok := err.(*errx.Error)
	require.True(t, ok, "expected *errx.Error, got %T", err)
	assert.Equal(t, code.Code, xerr.Code)
}

func submittableDraft(owner string) store.Expense {
	return store.Expense{
		ID:            1,
		OwnerUsername: owner,
		Status:        store.ExpenseDraft,
		Amount:        100,
		ExpenseDate:   time.Now(),
		ExpenseType:   "travel",
		PaymentMethod: "corporate-card",
	}
}

func TestApplySubmit_RequiresOwner(t *testing.T) {
	current := submittableDraft("alice")
	actor := kernel.Principal{Username: "bob"}

	_, err := expense.Apply(current, expense.EventSubmit, actor, expense.TransitionInput{})

	require.Error(t, err)
	assertErrCode(t, err, expense.CodeForbidden)
}

func TestApplySubmit_RequiresCompleteFields(t *testing.T) {
	current := submittableDraft("alice")
	current.ExpenseType = ""
	actor := kernel.Principal{Username: "alice"}

	_, err := expense.Apply(current, expense.EventSubmit, actor, expense.TransitionInput{})

	require.Error(t, err)
}

func TestApplySubmit_Success(t *testing.T) {
	current := submittableDraft("alice")
	actor := kernel.Principal{Username: "alice"}

	outcome, err := expense.Apply(current, expense.EventSubmit, actor, expense.TransitionInput{})

	require.NoError(t, err)
	assert.Equal(t, store.ExpenseSubmitted, outcome.Expense.Status)
	assert.Equal(t, expense.NotifySubmitted, outcome.Notify)
	assert.NotNil(t, outcome.Expense.SubmittedAt)
}

func TestApplyApprove_FourEyesBlocksOwner(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseSubmitted
	actor := kernel.Principal{Username: "alice", Permissions: []string{rbac.PermExpenseApprove}}

	_, err := expense.Apply(current, expense.EventApprove, actor, expense.TransitionInput{})

	require.Error(t, err)
	assertErrCode(t, err, expense.CodeForbidden)
}

func TestApplyApprove_RequiresPermission(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseSubmitted
	actor := kernel.Principal{Username: "carol"}

	_, err := expense.Apply(current, expense.EventApprove, actor, expense.TransitionInput{})

	require.Error(t, err)
	assertErrCode(t, err, expense.CodeForbidden)
}

func TestApplyApprove_Success(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseSubmitted
	actor := kernel.Principal{Username: "carol", Permissions: []string{rbac.PermExpenseApprove}}

	outcome, err := expense.Apply(current, expense.EventApprove, actor, expense.TransitionInput{})

	require.NoError(t, err)
	assert.Equal(t, store.ExpenseApproved, outcome.Expense.Status)
	require.NotNil(t, outcome.Expense.ApprovedBy)
	assert.Equal(t, "carol", *outcome.Expense.ApprovedBy)
}

func TestApplyApprove_WrongStatusRejected(t *testing.T) {
	current := submittableDraft("alice")
	actor := kernel.Principal{Username: "carol", Permissions: []string{rbac.PermExpenseApprove}}

	_, err := expense.Apply(current, expense.EventApprove, actor, expense.TransitionInput{})

	require.Error(t, err)
	assertErrCode(t, err, expense.CodeInvalidTransition)
}

func TestApplyReject_RequiresReason(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseSubmitted
	actor := kernel.Principal{Username: "carol", Permissions: []string{rbac.PermExpenseApprove}}

	_, err := expense.Apply(current, expense.EventReject, actor, expense.TransitionInput{})

	require.Error(t, err)
}

func TestApplyReject_Success(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseResubmitted
	actor := kernel.Principal{Username: "carol", Permissions: []string{rbac.PermExpenseApprove}}

	outcome, err := expense.Apply(current, expense.EventReject, actor, expense.TransitionInput{RejectionReason: "missing receipt"})

	require.NoError(t, err)
	assert.Equal(t, store.ExpenseRejected, outcome.Expense.Status)
	assert.Equal(t, "missing receipt", outcome.Expense.RejectionReason)
}

func TestApplyResubmit_IncrementsCounter(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseRejected
	current.ResubmittedCount = 1
	actor := kernel.Principal{Username: "alice"}

	outcome, err := expense.Apply(current, expense.EventResubmit, actor, expense.TransitionInput{})

	require.NoError(t, err)
	assert.Equal(t, store.ExpenseResubmitted, outcome.Expense.Status)
	assert.Equal(t, 2, outcome.Expense.ResubmittedCount)
}

func TestApplyMarkReimbursed_RequiresApprovedState(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseSubmitted
	actor := kernel.Principal{Username: "carol", Permissions: []string{rbac.PermExpenseApprove}}

	_, err := expense.Apply(current, expense.EventMarkReimbursed, actor, expense.TransitionInput{})

	require.Error(t, err)
	assertErrCode(t, err, expense.CodeInvalidTransition)
}

func TestApplyMarkReimbursed_Success(t *testing.T) {
	current := submittableDraft("alice")
	current.Status = store.ExpenseApproved
	actor := kernel.Principal{Username: "carol", Permissions: []string{rbac.PermExpenseApprove}}

	outcome, err := expense.Apply(current, expense.EventMarkReimbursed, actor, expense.TransitionInput{})

	require.NoError(t, err)
	assert.Equal(t, store.ExpenseReimbursed, outcome.Expense.Status)
	assert.Equal(t, expense.NotifyReimbursed, outcome.Notify)
}

func TestApply_UnknownEvent(t *testing.T) {
	current := submittableDraft("alice")
	actor := kernel.Principal{Username: "alice"}

	_, err := expense.Apply(current, expense.Event("bogus"), actor, expense.TransitionInput{})

	require.Error(t, err)
	assertErrCode(t, err, expense.CodeInvalidTransition)
}
