package model

import "time"

// Session models a row in the `sessions` table.  Token values are never
// stored; AccessTokenHash and RefreshTokenHash hold SHA-256 hex digests and
// each carries a unique index.  The access token hash and ExpiresAt are
// replaced in place on refresh; the row is deleted on logout.
type Session struct {
	ID               string
	PrincipalID      string
	AccessTokenHash  string
	RefreshTokenHash string
	ClientAddr       string // informational only
	UserAgent        string // informational only
	ExpiresAt        time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the stored expiry has passed at now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
