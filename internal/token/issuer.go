// Package token mints and verifies the signed, time-bounded tokens handed to
// principals.  The issuer is stateless; whether a token is still honoured is
// decided by the session row, not here.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/autoshop-identity/internal/model"
)

// Kind selects the payload shape.  It is not written into the token:
// access and refresh tokens differ only by which claims are present.
type Kind int

const (
	Access Kind = iota
	Refresh
)

// Subject is the identity a token is minted for.
type Subject struct {
	PrincipalID string
	Username    string
	Role        model.Role
}

// Claims is the decoded payload.  Access tokens carry username and role;
// refresh tokens carry only the subject.
type Claims struct {
	jwt.RegisteredClaims
	Username string     `json:"username,omitempty"`
	Role     model.Role `json:"role,omitempty"`
}

// PrincipalID returns the subject claim.
func (c *Claims) PrincipalID() string { return c.Subject }

// IsAccess reports whether the payload has the access token shape.
func (c *Claims) IsAccess() bool { return c.Username != "" && c.Role != "" }

// IsRefresh reports whether the payload has the refresh token shape.
func (c *Claims) IsRefresh() bool { return c.Username == "" && c.Role == "" }

// Signed is a minted token and the expiry embedded in it.  ExpiresAt is the
// only expiry computation; callers persist it as-is.
type Signed struct {
	Value     string
	ExpiresAt time.Time
}

// Issuer signs with HS256 using a key fixed at construction.
type Issuer struct {
	key []byte
	now func() time.Time
}

// NewIssuer returns an issuer for secret.  now may be nil for time.Now.
func NewIssuer(secret string, now func() time.Time) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("token: empty signing key")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{key: []byte(secret), now: now}, nil
}

// Issue signs a token of the given kind valid for ttl from now.  Times are
// truncated to whole seconds so the returned ExpiresAt equals the exp claim
// exactly.
func (i *Issuer) Issue(sub Subject, kind Kind, ttl time.Duration) (Signed, error) {
	if sub.PrincipalID == "" {
		return Signed{}, errors.New("token: empty subject")
	}
	if ttl <= 0 {
		return Signed{}, fmt.Errorf("token: non-positive ttl %s", ttl)
	}

	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.PrincipalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(), // distinct values for tokens minted in the same second
		},
	}
	if kind == Access {
		if sub.Username == "" || sub.Role == "" {
			return Signed{}, errors.New("token: access token needs username and role")
		}
		claims.Username = sub.Username
		claims.Role = sub.Role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Signed{}, fmt.Errorf("signing token: %w", err)
	}
	return Signed{Value: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
