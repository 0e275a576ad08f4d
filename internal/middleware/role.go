package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autoshop-identity/internal/apierror"
	"github.com/iliyamo/autoshop-identity/internal/model"
)

// RequireRole rejects requests whose role (set by SessionAuth) is not one
// of roles.  Must be mounted after SessionAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return apierror.New(c, http.StatusForbidden, apierror.CodeForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
