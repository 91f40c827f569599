// Package rbac resolves a role's permission set and answers hasPermission/
// requirePermission queries. Role-permission assignments are reference
// data (seeded at bootstrap) and are cached for the lifetime of the
// process — a permission change requires a restart to take effect.
package rbac

import (
	"sync"

	"github.com/ammonsd/activitytracking-core/pkg/kernel"
)

// Resources and actions named by the permission model and route table.
const (
	ResourceExpense = "EXPENSE"
	ResourceTask    = "TASK"
	ResourceUser    = "USER"
	ResourceJenkins = "JENKINS"
)

const (
	ActionCreate  = "CREATE"
	ActionRead    = "READ"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionApprove = "APPROVE"
	ActionAdmin   = "ADMIN"
	ActionNotify  = "NOTIFY"
)

// Permission strings used directly by handlers and the workflow engine.
const (
	PermExpenseCreate  = "EXPENSE:CREATE"
	PermExpenseRead    = "EXPENSE:READ"
	PermExpenseUpdate  = "EXPENSE:UPDATE"
	PermExpenseDelete  = "EXPENSE:DELETE"
	PermExpenseApprove = "EXPENSE:APPROVE"
	PermExpenseAdmin   = "EXPENSE:ADMIN" // owner-or-admin predicate's "admin" half for expenses
	PermTaskAdmin      = "TASK:ADMIN"
	PermUserAdmin      = "USER:ADMIN"
	PermJenkinsNotify  = "JENKINS:NOTIFY"
)

// Well-known role names.
const (
	RoleGuest          = "GUEST"
	RoleUser           = "USER"
	RoleAdmin          = "ADMIN"
	RoleExpenseAdmin   = "EXPENSE_ADMIN"
	RoleJenkinsService = "JENKINS_SERVICE"
)

// SeedRoles is the bootstrap reference-data manifest: every role the
// process expects to find in the roles/role_permissions tables, with its
// permission set. ADMIN holds every permission by convention.
var SeedRoles = map[string][]string{
	RoleGuest: {
		PermExpenseRead,
	},
	RoleUser: {
		PermExpenseCreate, PermExpenseRead, PermExpenseUpdate,
	},
	RoleExpenseAdmin: {
		PermExpenseCreate, PermExpenseRead, PermExpenseUpdate,
		PermExpenseApprove, PermExpenseAdmin,
	},
	RoleJenkinsService: {
		PermJenkinsNotify,
	},
	RoleAdmin: {
		PermExpenseCreate, PermExpenseRead, PermExpenseUpdate, PermExpenseDelete,
		PermExpenseApprove, PermExpenseAdmin, PermTaskAdmin, PermUserAdmin,
		PermJenkinsNotify,
	},
}

// RoleRepository loads a role's permission set from the database. Backed
// by pkg/store.PostgresRoleRepository in production; the in-process cache
// in front of it means this is invoked at most once per role per process
// lifetime.
type RoleRepository interface {
	PermissionsForRole(role string) ([]string, error)
}

// Evaluator answers permission queries, caching resolved role→permission
// sets for the process lifetime.
type Evaluator struct {
	repo  RoleRepository
	mu    sync.RWMutex
	cache map[string][]string
}

func NewEvaluator(repo RoleRepository) *Evaluator {
	return &Evaluator{repo: repo, cache: make(map[string][]string)}
}

func (e *Evaluator) permissionsFor(role string) ([]string, error) {
	e.mu.RLock()
	perms, ok := e.cache[role]
	e.mu.RUnlock()
	if ok {
		return perms, nil
	}

	perms, err := e.repo.PermissionsForRole(role)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[role] = perms
	e.mu.Unlock()
	return perms, nil
}

// HasPermission answers "may this principal perform ACTION on RESOURCE?"
func (e *Evaluator) HasPermission(role, permission string) (bool, error) {
	perms, err := e.permissionsFor(role)
	if err != nil {
		return false, err
	}
	return kernel.Principal{Role: role, Permissions: perms}.HasPermission(permission), nil
}

// Principal builds a fully-resolved kernel.Principal for username/role,
// loading (and caching) the role's permission set. Called by the Request
// Gate once per authenticated request.
func (e *Evaluator) Principal(username, role, tokenID string) (kernel.Principal, error) {
	perms, err := e.permissionsFor(role)
	if err != nil {
		return kernel.Principal{}, err
	}
	return kernel.Principal{Username: username, Role: role, Permissions: perms, TokenID: tokenID}, nil
}
