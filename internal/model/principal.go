package model

import "time"

// Role is one of the closed set of back-office roles.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleMechanic  Role = "MECHANIC"
	RoleFrontDesk Role = "FRONT_DESK"
	RoleCustomer  Role = "CUSTOMER"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleMechanic, RoleFrontDesk, RoleCustomer}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	for _, v := range Roles {
		if r == v {
			return true
		}
	}
	return false
}

// Principal represents a row in the `principals` table.
//
// Fields:
//
//	ID           – uuid assigned at registration, immutable.
//	Username     – unique, case-sensitive.
//	Email        – unique.
//	PasswordHash – salted verifier (bcrypt or argon2id PHC string).
//	Role         – one of Roles.
//	Active       – inactive principals cannot log in or refresh.
//	LastLoginAt  – nil until the first successful login.
type Principal struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never serialised
	Role         Role       `json:"role"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PublicPrincipal is the subset of a principal that leaves the service.
type PublicPrincipal struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Public strips the verifier and bookkeeping fields.
func (p Principal) Public() PublicPrincipal {
	return PublicPrincipal{ID: p.ID, Username: p.Username, Email: p.Email, Role: p.Role}
}

// PrincipalUpdate is a partial administrative update; nil fields are left
// unchanged.
type PrincipalUpdate struct {
	Role   *Role
	Active *bool
}

// Empty reports whether the update would change nothing.
func (u PrincipalUpdate) Empty() bool {
	return u.Role == nil && u.Active == nil
}
