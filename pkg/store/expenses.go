package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
	"github.com/ammonsd/activitytracking-core/pkg/ptrx"
	"github.com/jmoiron/sqlx"
)

var expenseErrors = errx.NewRegistry("STORE_EXPENSES")

var ErrExpenseNotFound = expenseErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "expense not found")

func ErrExpenseNotFoundErr() *errx.Error { return expenseErrors.New(ErrExpenseNotFound) }

// ExpenseRepository is the Expense Workflow Engine's persistence contract.
// WithLock opens a transaction and locks the target row with
// SELECT ... FOR UPDATE so the engine can read-check-write a transition as
// one serializable unit of work.
type ExpenseRepository interface {
	FindByID(ctx context.Context, id int64) (*Expense, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]Expense, int, error)
	ListByStatus(ctx context.Context, status ExpenseStatus, limit, offset int) ([]Expense, int, error)
	Save(ctx context.Context, e Expense) (int64, error)
	Delete(ctx context.Context, id int64) error
	// WithLock runs fn with the row identified by id locked FOR UPDATE for
	// the duration of one transaction, passing the locked snapshot in. fn's
	// returned Expense is persisted before commit.
	WithLock(ctx context.Context, id int64, fn func(current Expense) (Expense, error)) (Expense, error)
}

type PostgresExpenseRepository struct {
	db *sqlx.DB
}

func NewPostgresExpenseRepository(db *sqlx.DB) *PostgresExpenseRepository {
	return &PostgresExpenseRepository{db: db}
}

type expensePersistence struct {
	ID               int64          `db:"id"`
	OwnerUsername    string         `db:"owner_username"`
	ExpenseDate      time.Time      `db:"expense_date"`
	Amount           float64        `db:"amount"`
	Client           sql.NullString `db:"client"`
	Project          sql.NullString `db:"project"`
	ExpenseType      sql.NullString `db:"expense_type"`
	PaymentMethod    sql.NullString `db:"payment_method"`
	Vendor           sql.NullString `db:"vendor"`
	Description      sql.NullString `db:"description"`
	ReceiptRef       sql.NullString `db:"receipt_ref"`
	Status           string         `db:"status"`
	SubmittedAt      sql.NullTime   `db:"submitted_at"`
	ApprovedBy       sql.NullString `db:"approved_by"`
	ApprovedAt       sql.NullTime   `db:"approved_at"`
	RejectionReason  sql.NullString `db:"rejection_reason"`
	ReimbursedAt     sql.NullTime   `db:"reimbursed_at"`
	ResubmittedCount int            `db:"resubmitted_count"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

const selectExpense = `
	SELECT id, owner_username, expense_date, amount, client, project, expense_type,
	       payment_method, vendor, description, receipt_ref, status, submitted_at,
	       approved_by, approved_at, rejection_reason, reimbursed_at, resubmitted_count,
	       created_at, updated_at
	FROM expenses`

func (r *PostgresExpenseRepository) FindByID(ctx context.Context, id int64) (*Expense, error) {
	var p expensePersistence
	if err := r.db.GetContext(ctx, &p, selectExpense+" WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrExpenseNotFoundErr().WithDetail("id", id)
		}
		return nil, errx.Wrap(err, "failed to find expense", errx.TypeInternal)
	}
	e := toDomainExpense(p)
	return &e, nil
}

func (r *PostgresExpenseRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]Expense, int, error) {
	var ps []expensePersistence
	query := selectExpense + " WHERE owner_username = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3"
	if err := r.db.SelectContext(ctx, &ps, query, owner, limit, offset); err != nil {
		return nil, 0, errx.Wrap(err, "failed to list expenses by owner", errx.TypeInternal)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM expenses WHERE owner_username = $1`, owner); err != nil {
		return nil, 0, errx.Wrap(err, "failed to count expenses by owner", errx.TypeInternal)
	}
	return toDomainExpenses(ps), total, nil
}

func (r *PostgresExpenseRepository) ListByStatus(ctx context.Context, status ExpenseStatus, limit, offset int) ([]Expense, int, error) {
	var ps []expensePersistence
	query := selectExpense + " WHERE status = $1 ORDER BY submitted_at ASC LIMIT $2 OFFSET $3"
	if err := r.db.SelectContext(ctx, &ps, query, string(status), limit, offset); err != nil {
		return nil, 0, errx.Wrap(err, "failed to list expenses by status", errx.TypeInternal)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM expenses WHERE status = $1`, string(status)); err != nil {
		return nil, 0, errx.Wrap(err, "failed to count expenses by status", errx.TypeInternal)
	}
	return toDomainExpenses(ps), total, nil
}

func (r *PostgresExpenseRepository) Save(ctx context.Context, e Expense) (int64, error) {
	if e.ID != 0 {
		return e.ID, r.update(ctx, r.db, e)
	}
	return r.create(ctx, r.db, e)
}

type execer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *PostgresExpenseRepository) create(ctx context.Context, db execer, e Expense) (int64, error) {
	query := `
		INSERT INTO expenses (
			owner_username, expense_date, amount, client, project, expense_type,
			payment_method, vendor, description, receipt_ref, status, submitted_at,
			approved_by, approved_at, rejection_reason, reimbursed_at, resubmitted_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		) RETURNING id`

	var id int64
	err := db.GetContext(ctx, &id, query,
		e.OwnerUsername, e.ExpenseDate, e.Amount, nullableString(e.Client), nullableString(e.Project),
		nullableString(e.ExpenseType), nullableString(e.PaymentMethod), nullableString(e.Vendor),
		nullableString(e.Description), nullableString(e.ReceiptRef), string(e.Status),
		nullableTime(e.SubmittedAt), nullableStringPtr(e.ApprovedBy), nullableTime(e.ApprovedAt),
		nullableString(e.RejectionReason), nullableTime(e.ReimbursedAt), e.ResubmittedCount,
	)
	if err != nil {
		return 0, errx.Wrap(err, "failed to create expense", errx.TypeInternal)
	}
	return id, nil
}

func (r *PostgresExpenseRepository) update(ctx context.Context, db execer, e Expense) error {
	query := `
		UPDATE expenses SET
			expense_date = $1, amount = $2, client = $3, project = $4, expense_type = $5,
			payment_method = $6, vendor = $7, description = $8, receipt_ref = $9,
			status = $10, submitted_at = $11, approved_by = $12, approved_at = $13,
			rejection_reason = $14, reimbursed_at = $15, resubmitted_count = $16,
			updated_at = now()
		WHERE id = $17`

	result, err := db.ExecContext(ctx, query,
		e.ExpenseDate, e.Amount, nullableString(e.Client), nullableString(e.Project),
		nullableString(e.ExpenseType), nullableString(e.PaymentMethod), nullableString(e.Vendor),
		nullableString(e.Description), nullableString(e.ReceiptRef), string(e.Status),
		nullableTime(e.SubmittedAt), nullableStringPtr(e.ApprovedBy), nullableTime(e.ApprovedAt),
		nullableString(e.RejectionReason), nullableTime(e.ReimbursedAt), e.ResubmittedCount,
		e.ID,
	)
	if err != nil {
		return errx.Wrap(err, "failed to update expense", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return ErrExpenseNotFoundErr().WithDetail("id", e.ID)
	}
	return nil
}

func (r *PostgresExpenseRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return errx.Wrap(err, "failed to delete expense", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return ErrExpenseNotFoundErr().WithDetail("id", id)
	}
	return nil
}

// WithLock is the serializable unit of work behind every state transition:
// it locks the row FOR UPDATE, hands the caller the locked snapshot, then
// persists whatever the callback returns before committing. Concurrent
// transitions against the same expense serialize on the row lock rather
// than racing at the application layer.
func (r *PostgresExpenseRepository) WithLock(ctx context.Context, id int64, fn func(current Expense) (Expense, error)) (Expense, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Expense{}, errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	var p expensePersistence
	err = tx.GetContext(ctx, &p, selectExpense+" WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return Expense{}, ErrExpenseNotFoundErr().WithDetail("id", id)
		}
		return Expense{}, errx.Wrap(err, "failed to lock expense row", errx.TypeInternal)
	}

	next, err := fn(toDomainExpense(p))
	if err != nil {
		return Expense{}, err
	}
	next.ID = id

	if err := r.update(ctx, tx, next); err != nil {
		return Expense{}, err
	}

	if err := tx.Commit(); err != nil {
		return Expense{}, errx.Wrap(err, "failed to commit expense transition", errx.TypeInternal)
	}
	return next, nil
}

func toDomainExpense(p expensePersistence) Expense {
	e := Expense{
		ID:               p.ID,
		OwnerUsername:    p.OwnerUsername,
		ExpenseDate:      p.ExpenseDate,
		Amount:           p.Amount,
		Client:           p.Client.String,
		Project:          p.Project.String,
		ExpenseType:      p.ExpenseType.String,
		PaymentMethod:    p.PaymentMethod.String,
		Vendor:           p.Vendor.String,
		Description:      p.Description.String,
		ReceiptRef:       p.ReceiptRef.String,
		Status:           ExpenseStatus(p.Status),
		RejectionReason:  p.RejectionReason.String,
		ResubmittedCount: p.ResubmittedCount,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.SubmittedAt.Valid {
		e.SubmittedAt = ptrx.Time(p.SubmittedAt.Time)
	}
	if p.ApprovedAt.Valid {
		e.ApprovedAt = ptrx.Time(p.ApprovedAt.Time)
	}
	if p.ReimbursedAt.Valid {
		e.ReimbursedAt = ptrx.Time(p.ReimbursedAt.Time)
	}
	if p.ApprovedBy.Valid {
		e.ApprovedBy = ptrx.String(p.ApprovedBy.String)
	}
	return e
}

func toDomainExpenses(ps []expensePersistence) []Expense {
	es := make([]Expense, len(ps))
	for i, p := range ps {
		es[i] = toDomainExpense(p)
	}
	return es
}

func nullableTime(t *time.Time) sql.NullTime {
	return sql.NullTime{Time: ptrx.TimeValue(t), Valid: t != nil}
}

func nullableStringPtr(s *string) sql.NullString {
	return sql.NullString{String: ptrx.StringValue(s), Valid: s != nil}
}
