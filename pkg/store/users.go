package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var usersErrors = errx.NewRegistry("STORE_USERS")

var (
	ErrUserNotFound      = usersErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "user not found")
	ErrUserAlreadyExists = usersErrors.Register("ALREADY_EXISTS", errx.TypeConflict, 409, "username or email already in use")
)

func ErrUserNotFoundErr() *errx.Error      { return usersErrors.New(ErrUserNotFound) }
func ErrUserAlreadyExistsErr() *errx.Error { return usersErrors.New(ErrUserAlreadyExists) }

// UserRepository is the Credential Store's persistence contract.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Save(ctx context.Context, u User) (int64, error)
	// IncrementFailedLogin atomically bumps failed_login_count and locks
	// the account once it reaches the lockout threshold, returning the
	// post-increment locked state.
	IncrementFailedLogin(ctx context.Context, username string, lockoutThreshold int) (locked bool, err error)
	ResetFailedLogin(ctx context.Context, username string) error
	Unlock(ctx context.Context, username string) error
	// ChangePassword atomically updates the password hash, expiration
	// fields, and the revocation watermark, and appends+prunes the
	// password history, inside one transaction.
	ChangePassword(ctx context.Context, username, newHash string, expiresAt time.Time, historyLimit int) error
	RecentPasswordHashes(ctx context.Context, username string, limit int) ([]string, error)
	ExpiringWithin(ctx context.Context, days int, excludeRole string) ([]User, error)
	// SetTokensInvalidBefore bumps the revocation watermark without
	// touching the password, used for administrator-initiated revocation
	// of a user's outstanding tokens.
	SetTokensInvalidBefore(ctx context.Context, username string, cutoff time.Time) error
}

type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

type userPersistence struct {
	ID                  int64          `db:"id"`
	Username            string         `db:"username"`
	Email               sql.NullString `db:"email"`
	FirstName           string         `db:"first_name"`
	LastName            string         `db:"last_name"`
	Company             sql.NullString `db:"company"`
	PasswordHash        string         `db:"password_hash"`
	RoleName            string         `db:"role_name"`
	Enabled             bool           `db:"enabled"`
	Locked              bool           `db:"locked"`
	FailedLoginCount    int            `db:"failed_login_count"`
	PasswordLastChanged time.Time      `db:"password_last_changed"`
	PasswordExpiresAt   time.Time      `db:"password_expires_at"`
	ForcePasswordChange bool           `db:"force_password_change"`
	TokensInvalidBefore time.Time      `db:"tokens_invalid_before"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

const selectUserJoinRole = `
	SELECT u.id, u.username, u.email, u.first_name, u.last_name, u.company,
	       u.password_hash, r.name AS role_name, u.enabled, u.locked,
	       u.failed_login_count, u.password_last_changed, u.password_expires_at,
	       u.force_password_change, u.tokens_invalid_before, u.created_at, u.updated_at
	FROM users u JOIN roles r ON r.id = u.role_id`

func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var p userPersistence
	query := selectUserJoinRole + " WHERE u.username = $1"
	if err := r.db.GetContext(ctx, &p, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFoundErr().WithDetail("username", username)
		}
		return nil, errx.Wrap(err, "failed to find user by username", errx.TypeInternal)
	}
	u := toDomainUser(p)
	return &u, nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	var p userPersistence
	query := selectUserJoinRole + " WHERE u.id = $1"
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFoundErr().WithDetail("id", id)
		}
		return nil, errx.Wrap(err, "failed to find user by id", errx.TypeInternal)
	}
	u := toDomainUser(p)
	return &u, nil
}

// Save inserts a new user or updates an existing one, following the
// teacher's exists-check-then-create-or-update idiom.
func (r *PostgresUserRepository) Save(ctx context.Context, u User) (int64, error) {
	if u.ID != 0 {
		return u.ID, r.update(ctx, u)
	}
	return r.create(ctx, u)
}

func (r *PostgresUserRepository) create(ctx context.Context, u User) (int64, error) {
	query := `
		INSERT INTO users (
			username, email, first_name, last_name, company, password_hash,
			role_id, enabled, locked, failed_login_count, password_last_changed,
			password_expires_at, force_password_change, tokens_invalid_before
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			(SELECT id FROM roles WHERE name = $7), $8, $9, $10, $11, $12, $13, $14
		) RETURNING id`

	var id int64
	err := r.db.GetContext(ctx, &id, query,
		u.Username, nullableString(u.Email), u.FirstName, u.LastName, nullableString(u.Company),
		u.PasswordHash, u.Role, u.Enabled, u.Locked, u.FailedLoginCount,
		u.PasswordLastChanged, u.PasswordExpiresAt, u.ForcePasswordChange, u.TokensInvalidBefore,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return 0, ErrUserAlreadyExistsErr().WithDetail("username", u.Username)
		}
		return 0, errx.Wrap(err, "failed to create user", errx.TypeInternal)
	}
	return id, nil
}

func (r *PostgresUserRepository) update(ctx context.Context, u User) error {
	query := `
		UPDATE users SET
			email = $1, first_name = $2, last_name = $3, company = $4,
			role_id = (SELECT id FROM roles WHERE name = $5),
			enabled = $6, locked = $7, updated_at = now()
		WHERE id = $8`

	result, err := r.db.ExecContext(ctx, query,
		nullableString(u.Email), u.FirstName, u.LastName, nullableString(u.Company),
		u.Role, u.Enabled, u.Locked, u.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrUserAlreadyExistsErr().WithDetail("username", u.Username)
		}
		return errx.Wrap(err, "failed to update user", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return ErrUserNotFoundErr().WithDetail("id", u.ID)
	}
	return nil
}

func (r *PostgresUserRepository) IncrementFailedLogin(ctx context.Context, username string, lockoutThreshold int) (bool, error) {
	query := `
		UPDATE users SET
			failed_login_count = failed_login_count + 1,
			locked = (failed_login_count + 1 >= $2),
			updated_at = now()
		WHERE username = $1
		RETURNING locked`

	var locked bool
	if err := r.db.GetContext(ctx, &locked, query, username, lockoutThreshold); err != nil {
		if err == sql.ErrNoRows {
			return false, ErrUserNotFoundErr().WithDetail("username", username)
		}
		return false, errx.Wrap(err, "failed to increment failed login count", errx.TypeInternal)
	}
	return locked, nil
}

func (r *PostgresUserRepository) ResetFailedLogin(ctx context.Context, username string) error {
	query := `UPDATE users SET failed_login_count = 0, updated_at = now() WHERE username = $1`
	_, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		return errx.Wrap(err, "failed to reset failed login count", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresUserRepository) Unlock(ctx context.Context, username string) error {
	query := `UPDATE users SET locked = false, failed_login_count = 0, updated_at = now() WHERE username = $1`
	result, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		return errx.Wrap(err, "failed to unlock user", errx.TypeInternal)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFoundErr().WithDetail("username", username)
	}
	return nil
}

// ChangePassword is the single serialisable unit of work behind a
// password change: update the hash, expiration, force-change flag, and
// revocation watermark; then append the new hash to password_history and
// prune down to historyLimit rows — all inside one transaction, under
// the user row's lock.
func (r *PostgresUserRepository) ChangePassword(ctx context.Context, username, newHash string, expiresAt time.Time, historyLimit int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	var userID int64
	now := time.Now().UTC()
	err = tx.GetContext(ctx, &userID, `
		UPDATE users SET
			password_hash = $2,
			password_last_changed = $3,
			password_expires_at = $4,
			force_password_change = false,
			tokens_invalid_before = $3,
			updated_at = $3
		WHERE username = $1
		RETURNING id`, username, newHash, now, expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFoundErr().WithDetail("username", username)
		}
		return errx.Wrap(err, "failed to update password", errx.TypeInternal)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO password_history (user_id, password_hash, changed_at) VALUES ($1, $2, $3)`,
		userID, newHash, now); err != nil {
		return errx.Wrap(err, "failed to append password history", errx.TypeInternal)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history WHERE user_id = $1
			ORDER BY changed_at DESC LIMIT $2
		)`, userID, historyLimit); err != nil {
		return errx.Wrap(err, "failed to prune password history", errx.TypeInternal)
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit password change", errx.TypeInternal)
	}
	return nil
}

// SetTokensInvalidBefore is the administrator-initiated counterpart to
// ChangePassword's revocation watermark update: it moves the same
// tokens_invalid_before column forward without requiring a password
// change, so every token issued before cutoff is treated as revoked by
// the gate's watermark check.
func (r *PostgresUserRepository) SetTokensInvalidBefore(ctx context.Context, username string, cutoff time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET tokens_invalid_before = $2, updated_at = now() WHERE username = $1`,
		username, cutoff)
	if err != nil {
		return errx.Wrap(err, "failed to set tokens invalid before watermark", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return ErrUserNotFoundErr().WithDetail("username", username)
	}
	return nil
}

func (r *PostgresUserRepository) RecentPasswordHashes(ctx context.Context, username string, limit int) ([]string, error) {
	var hashes []string
	query := `
		SELECT ph.password_hash FROM password_history ph
		JOIN users u ON u.id = ph.user_id
		WHERE u.username = $1
		ORDER BY ph.changed_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &hashes, query, username, limit); err != nil {
		return nil, errx.Wrap(err, "failed to load password history", errx.TypeInternal)
	}
	return hashes, nil
}

// ExpiringWithin returns every user (excluding excludeRole, the GUEST
// exception) whose password expires within the next `days` days,
// inclusive of today, or expired no more than a day ago — used by the
// Scheduler's expiration scan. The lower bound keeps a long-expired
// password from being re-notified on every run indefinitely; it matches
// the scan's daily cadence rather than the scan's own window.
func (r *PostgresUserRepository) ExpiringWithin(ctx context.Context, days int, excludeRole string) ([]User, error) {
	var ps []userPersistence
	query := selectUserJoinRole + `
		WHERE r.name != $1
		  AND u.password_expires_at >= now() - interval '1 day'
		  AND u.password_expires_at <= now() + ($2 || ' days')::interval
		ORDER BY u.password_expires_at`
	if err := r.db.SelectContext(ctx, &ps, query, excludeRole, days); err != nil {
		return nil, errx.Wrap(err, "failed to load expiring users", errx.TypeInternal)
	}
	users := make([]User, len(ps))
	for i, p := range ps {
		users[i] = toDomainUser(p)
	}
	return users, nil
}

func toDomainUser(p userPersistence) User {
	return User{
		ID:                  p.ID,
		Username:            p.Username,
		Email:               p.Email.String,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		Company:             p.Company.String,
		PasswordHash:        p.PasswordHash,
		Role:                p.RoleName,
		Enabled:             p.Enabled,
		Locked:              p.Locked,
		FailedLoginCount:    p.FailedLoginCount,
		PasswordLastChanged: p.PasswordLastChanged,
		PasswordExpiresAt:   p.PasswordExpiresAt,
		ForcePasswordChange: p.ForcePasswordChange,
		TokensInvalidBefore: p.TokensInvalidBefore,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
