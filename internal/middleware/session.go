package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autoshop-identity/internal/apierror"
	"github.com/iliyamo/autoshop-identity/internal/model"
	"github.com/iliyamo/autoshop-identity/internal/token"
)

// Context keys set by SessionAuth.
const (
	CtxPrincipalID = "principal_id"
	CtxUsername    = "username"
	CtxRole        = "role"
	CtxClaims      = "claims"
)

// ValidateTimeout bounds the session lookup behind SessionAuth.
var ValidateTimeout = 5 * time.Second

// TokenValidator checks an access token against its session.
type TokenValidator interface {
	ValidateToken(ctx context.Context, raw string) (*token.Claims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// SessionAuth validates the bearer token through v, so logged-out and
// expired sessions are rejected even when the signature is still good.
// On success the principal id, username, role and claims are stored in
// the echo context.
func SessionAuth(v TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := BearerToken(c.Request())
			if !ok {
				return apierror.New(c, http.StatusUnauthorized, apierror.CodeMissingToken, "missing bearer token")
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), ValidateTimeout)
			claims, err := v.ValidateToken(ctx, raw)
			cancel()
			if err != nil {
				return apierror.Write(c, err)
			}
			c.Set(CtxPrincipalID, claims.PrincipalID())
			c.Set(CtxUsername, claims.Username)
			c.Set(CtxRole, claims.Role)
			c.Set(CtxClaims, claims)
			return next(c)
		}
	}
}

// PrincipalID returns the authenticated principal, or "" outside
// SessionAuth.
func PrincipalID(c echo.Context) string {
	s, _ := c.Get(CtxPrincipalID).(string)
	return s
}

// Role returns the authenticated principal's role.
func Role(c echo.Context) model.Role {
	r, _ := c.Get(CtxRole).(model.Role)
	return r
}
