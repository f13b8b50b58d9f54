package models

// Role is the access level carried in an operator token.
type Role string

const (
	// RoleAdmin may run jobs and change recordings.
	RoleAdmin Role = "admin"
	// RoleViewer may only read.
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}
