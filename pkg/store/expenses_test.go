package store_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/ammonsd/activitytracking-core/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expenseColumns() []string {
	return []string{
		"id", "owner_username", "expense_date", "amount", "client", "project", "expense_type",
		"payment_method", "vendor", "description", "receipt_ref", "status", "submitted_at",
		"approved_by", "approved_at", "rejection_reason", "reimbursed_at", "resubmitted_count",
		"created_at", "updated_at",
	}
}

func TestExpenseRepository_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresExpenseRepository(db)

	mock.ExpectQuery(`SELECT .* FROM expenses WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(expenseColumns()))

	_, err := repo.FindByID(context.Background(), 42)

	require.Error(t, err)
}

func TestExpenseRepository_WithLock_CommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresExpenseRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM expenses WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(expenseColumns()).AddRow(
			int64(7), "alice", now, 50.0, nil, nil, "travel", "card", nil, nil, nil,
			string(store.ExpenseDraft), nil, nil, nil, nil, nil, 0, now, now,
		))
	mock.ExpectExec(`UPDATE expenses SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.WithLock(context.Background(), 7, func(current store.Expense) (store.Expense, error) {
		current.Status = store.ExpenseSubmitted
		return current, nil
	})

	require.NoError(t, err)
	assert.Equal(t, store.ExpenseSubmitted, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseRepository_WithLock_RollsBackOnCallbackError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresExpenseRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM expenses WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(expenseColumns()).AddRow(
			int64(7), "alice", now, 50.0, nil, nil, "travel", "card", nil, nil, nil,
			string(store.ExpenseDraft), nil, nil, nil, nil, nil, 0, now, now,
		))
	mock.ExpectRollback()

	_, err := repo.WithLock(context.Background(), 7, func(current store.Expense) (store.Expense, error) {
		return store.Expense{}, store.ErrExpenseNotFoundErr()
	})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
