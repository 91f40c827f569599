package store

import (
	"context"
	"strings"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
	"github.com/jmoiron/sqlx"
)

// PostgresRoleRepository implements rbac.RoleRepository, loading a role's
// permission set from the roles/permissions/role_permissions reference
// tables seeded at bootstrap. The rbac.Evaluator caches whatever this
// returns for the process lifetime, so this is invoked at most once per
// role per process.
type PostgresRoleRepository struct {
	db *sqlx.DB
}

func NewPostgresRoleRepository(db *sqlx.DB) *PostgresRoleRepository {
	return &PostgresRoleRepository{db: db}
}

func (r *PostgresRoleRepository) PermissionsForRole(role string) ([]string, error) {
	ctx := context.Background()
	var perms []string
	query := `
		SELECT p.resource || ':' || p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles r ON r.id = rp.role_id
		WHERE r.name = $1
		ORDER BY p.resource, p.action`
	if err := r.db.SelectContext(ctx, &perms, query, role); err != nil {
		return nil, errx.Wrap(err, "failed to load permissions for role", errx.TypeInternal)
	}
	return perms, nil
}

// EnsureRolesAndPermissions inserts any role, permission, or
// role_permission row named in manifest that does not already exist.
// Never removes rows not named in manifest — an operator-added role is
// left alone.
func (r *PostgresRoleRepository) EnsureRolesAndPermissions(ctx context.Context, manifest map[string][]string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	for role, perms := range manifest {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role); err != nil {
			return errx.Wrap(err, "failed to seed role", errx.TypeInternal)
		}

		for _, perm := range perms {
			resource, action, ok := splitPermission(perm)
			if !ok {
				continue
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO permissions (resource, action) VALUES ($1, $2) ON CONFLICT (resource, action) DO NOTHING`,
				resource, action); err != nil {
				return errx.Wrap(err, "failed to seed permission", errx.TypeInternal)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT r.id, p.id FROM roles r, permissions p
				WHERE r.name = $1 AND p.resource = $2 AND p.action = $3
				ON CONFLICT DO NOTHING`, role, resource, action); err != nil {
				return errx.Wrap(err, "failed to seed role permission", errx.TypeInternal)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit reference data seed", errx.TypeInternal)
	}
	return nil
}

func splitPermission(perm string) (resource, action string, ok bool) {
	parts := strings.SplitN(perm, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
