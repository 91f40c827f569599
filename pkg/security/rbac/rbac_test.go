package rbac_test

import (
	"errors"
	"testing"

	"github.com/ammonsd/activitytracking-core/pkg/security/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoleRepository struct {
	calls int
	perms map[string][]string
	err   error
}

func (f *fakeRoleRepository) PermissionsForRole(role string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.perms[role], nil
}

func TestEvaluator_HasPermission(t *testing.T) {
	repo := &fakeRoleRepository{perms: map[string][]string{"USER": {rbac.PermExpenseCreate}}}
	eval := rbac.NewEvaluator(repo)

	ok, err := eval.HasPermission("USER", rbac.PermExpenseCreate)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eval.HasPermission("USER", rbac.PermExpenseApprove)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_CachesPermissionsPerRole(t *testing.T) {
	repo := &fakeRoleRepository{perms: map[string][]string{"ADMIN": rbac.SeedRoles[rbac.RoleAdmin]}}
	eval := rbac.NewEvaluator(repo)

	_, err := eval.HasPermission("ADMIN", rbac.PermUserAdmin)
	require.NoError(t, err)
	_, err = eval.HasPermission("ADMIN", rbac.PermExpenseAdmin)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
}

func TestEvaluator_Principal_PropagatesRepositoryError(t *testing.T) {
	repo := &fakeRoleRepository{err: errors.New("db unavailable")}
	eval := rbac.NewEvaluator(repo)

	_, err := eval.Principal("alice", "USER", "jti-1")

	require.Error(t, err)
}

func TestEvaluator_Principal_BuildsResolvedPrincipal(t *testing.T) {
	repo := &fakeRoleRepository{perms: map[string][]string{"USER": {rbac.PermExpenseCreate, rbac.PermExpenseRead}}}
	eval := rbac.NewEvaluator(repo)

	p, err := eval.Principal("alice", "USER", "jti-1")

	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "jti-1", p.TokenID)
	assert.True(t, p.HasPermission(rbac.PermExpenseRead))
}
