// Package rbac evaluates role-based permissions. It is pure and performs no
// I/O: callers load the actor's role names elsewhere and ask the evaluator
// whether the effective permission set allows an action.
package rbac

import (
	"fmt"
	"strings"
)

// Permission is a resource/action pair. Either part may be the wildcard "*".
type Permission struct {
	Resource string
	Action   string
}

// ParsePermission parses the "resource:action" string form.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: expected resource:action", s)
	}
	return Permission{Resource: parts[0], Action: parts[1]}, nil
}

func (p Permission) String() string { return p.Resource + ":" + p.Action }

// Matches reports whether p (possibly containing wildcards) grants other.
func (p Permission) Matches(other Permission) bool {
	return (p.Resource == "*" || p.Resource == other.Resource) &&
		(p.Action == "*" || p.Action == other.Action)
}

// Built-in role names.
const (
	RoleViewer    = "viewer"
	RoleUser      = "user"
	RoleDeveloper = "developer"
	RoleAdmin     = "admin"
)

// Role is a named permission set. Supersedes lists roles whose permissions
// this role transitively inherits, so a higher role's effective set is
// always a superset of the roles beneath it.
type Role struct {
	Name        string
	Description string
	Permissions []Permission
	Supersedes  []string
}

// Evaluator resolves role names to effective permission sets against a
// fixed role hierarchy. Unknown roles contribute no permissions.
type Evaluator struct {
	roles map[string]Role
}

// NewEvaluator returns an evaluator preloaded with the built-in hierarchy
// admin ⊇ developer ⊇ user ⊇ viewer.
func NewEvaluator() *Evaluator {
	e := &Evaluator{roles: make(map[string]Role)}
	for _, r := range defaultRoles() {
		e.roles[r.Name] = r
	}
	return e
}

func defaultRoles() []Role {
	return []Role{
		{
			Name:        RoleViewer,
			Description: "Read-only access to assets, dependencies, and history",
			Permissions: []Permission{
				{Resource: "asset", Action: "read"},
				{Resource: "dependency", Action: "read"},
				{Resource: "event", Action: "read"},
			},
		},
		{
			Name:        RoleUser,
			Description: "Viewer plus asset registration and updates",
			Permissions: []Permission{
				{Resource: "asset", Action: "write"},
			},
			Supersedes: []string{RoleViewer},
		},
		{
			Name:        RoleDeveloper,
			Description: "User plus deletion, edge management, and key access",
			Permissions: []Permission{
				{Resource: "asset", Action: "delete"},
				{Resource: "dependency", Action: "write"},
				{Resource: "key", Action: "read"},
			},
			Supersedes: []string{RoleUser},
		},
		{
			Name:        RoleAdmin,
			Description: "Full access",
			Permissions: []Permission{
				{Resource: "*", Action: "*"},
			},
			Supersedes: []string{RoleDeveloper},
		},
	}
}

// AddRole registers a custom role. Superseded roles that do not exist are
// simply ignored at evaluation time (fail-closed).
func (e *Evaluator) AddRole(r Role) error {
	if r.Name == "" {
		return fmt.Errorf("role name cannot be empty")
	}
	e.roles[r.Name] = r
	return nil
}

// Role returns the definition of a role, if known.
func (e *Evaluator) Role(name string) (Role, bool) {
	r, ok := e.roles[name]
	return r, ok
}

// EffectivePermissions returns the union of the named roles' permission
// sets and everything they transitively supersede. Unknown names are
// skipped.
func (e *Evaluator) EffectivePermissions(roleNames []string) map[Permission]struct{} {
	perms := make(map[Permission]struct{})
	visited := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		role, ok := e.roles[name]
		if !ok {
			return
		}
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
		for _, parent := range role.Supersedes {
			walk(parent)
		}
	}
	for _, name := range roleNames {
		walk(name)
	}
	return perms
}

// IsAllowed reports whether the effective permission set grants the given
// resource/action, honoring "*:*" and "resource:*" wildcards.
func IsAllowed(perms map[Permission]struct{}, resource, action string) bool {
	want := Permission{Resource: resource, Action: action}
	for p := range perms {
		if p.Matches(want) {
			return true
		}
	}
	return false
}

// Allowed is the one-shot convenience: resolve roles and check a single
// permission.
func (e *Evaluator) Allowed(roleNames []string, resource, action string) bool {
	return IsAllowed(e.EffectivePermissions(roleNames), resource, action)
}
