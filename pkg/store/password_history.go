package store

import (
	"context"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
	"github.com/ammonsd/activitytracking-core/pkg/security/password"
	"github.com/jmoiron/sqlx"
)

// PasswordHistoryRepository adapts the stored password_history rows to the
// password.Verifier-consuming history shape the Password Policy Engine
// validates against when checking reuse over the last N hashes.
type PasswordHistoryRepository interface {
	History(ctx context.Context, username string, limit int) ([]password.HistoryEntry, error)
}

type PostgresPasswordHistoryRepository struct {
	db *sqlx.DB
}

func NewPostgresPasswordHistoryRepository(db *sqlx.DB) *PostgresPasswordHistoryRepository {
	return &PostgresPasswordHistoryRepository{db: db}
}

func (r *PostgresPasswordHistoryRepository) History(ctx context.Context, username string, limit int) ([]password.HistoryEntry, error) {
	var hashes []string
	query := `
		SELECT ph.password_hash FROM password_history ph
		JOIN users u ON u.id = ph.user_id
		WHERE u.username = $1
		ORDER BY ph.changed_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &hashes, query, username, limit); err != nil {
		return nil, errx.Wrap(err, "failed to load password history", errx.TypeInternal)
	}
	entries := make([]password.HistoryEntry, len(hashes))
	for i, h := range hashes {
		entries[i] = password.HistoryEntry{PasswordHash: h}
	}
	return entries, nil
}
