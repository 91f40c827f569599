package store

import (
	"context"
	"time"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var revocationErrors = errx.NewRegistry("STORE_REVOCATION")

var ErrAlreadyRevoked = revocationErrors.Register("ALREADY_REVOKED", errx.TypeConflict, 409, "token already revoked")

// RevocationRepository is the Revocation Ledger's persistence contract. It
// answers single-jti membership checks for the Request Gate and is
// periodically swept by the Scheduler once every entry's natural expiry
// has passed.
type RevocationRepository interface {
	// Revoke records jti as revoked. Idempotent: revoking an already
	// revoked jti is a no-op, not an error.
	Revoke(ctx context.Context, jti, username string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// DeleteExpiredBefore removes ledger rows whose natural token expiry
	// has already passed — those entries can never be asked about again,
	// since a verified token with that jti would be rejected on expiry
	// alone.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostgresRevocationRepository struct {
	db *sqlx.DB
}

func NewPostgresRevocationRepository(db *sqlx.DB) *PostgresRevocationRepository {
	return &PostgresRevocationRepository{db: db}
}

func (r *PostgresRevocationRepository) Revoke(ctx context.Context, jti, username string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (jti, username, revoked_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (jti) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, jti, username, expiresAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return errx.Wrap(err, "failed to revoke token", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`
	if err := r.db.GetContext(ctx, &exists, query, jti); err != nil {
		return false, errx.Wrap(err, "failed to check token revocation", errx.TypeInternal)
	}
	return exists, nil
}

func (r *PostgresRevocationRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, errx.Wrap(err, "failed to garbage collect revocation ledger", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	return rows, nil
}
