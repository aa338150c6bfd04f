// Package access computes the conversation visibility predicate for an agent session.
package access

import "strings"

// DefaultDepartment is the general-intake queue, visible to every agent of a
// tenant regardless of their own department.
const DefaultDepartment = "GERAL"

// Role is the agent's role within a tenant.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleAgent Role = "AGENT"
)

// Session is the per-request agent context. It is not persisted; handlers
// build it from JWT claims on every call.
type Session struct {
	TenantID   string
	Role       Role
	Department string
}

// IsAdmin reports whether the session has tenant-wide visibility.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// CanonicalDepartment normalizes a department name. Department names are
// case-insensitive; the canonical form is trimmed upper case, used for
// storage, session claims, and every comparison so list filters and direct
// fetches agree.
func CanonicalDepartment(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Departments returns the canonical department names visible to the session,
// or nil when every department of the tenant is visible.
func (s Session) Departments() []string {
	if s.IsAdmin() {
		return nil
	}
	dept := CanonicalDepartment(s.Department)
	if dept == "" || dept == DefaultDepartment {
		return []string{DefaultDepartment}
	}
	return []string{dept, DefaultDepartment}
}

// CanView reports whether a conversation tagged with department is visible.
// The tenant check is the caller's responsibility; every store query is
// already tenant-scoped.
func (s Session) CanView(department string) bool {
	depts := s.Departments()
	if depts == nil {
		return true
	}
	department = CanonicalDepartment(department)
	for _, d := range depts {
		if d == department {
			return true
		}
	}
	return false
}
