package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autoshop-identity/internal/handler"
	"github.com/iliyamo/autoshop-identity/internal/middleware"
	"github.com/iliyamo/autoshop-identity/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the authentication routes.  Only the credential
// endpoints (register, login, refresh) sit behind the rate limiter;
// validate and logout are called by peer services on every request and
// are left unthrottled.  /v1/me and the admin group require a live session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.TokenValidator, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh", a.Refresh, limiter)
	// Logout and validate read the bearer token themselves; logout of an
	// unknown token still answers 204.
	g.POST("/logout", a.Logout)
	g.GET("/validate", a.Validate)

	auth := e.Group("/v1", middleware.SessionAuth(v))
	auth.GET("/me", a.Me)

	admin := auth.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	admin.PATCH("/principals/:id", a.UpdatePrincipal)
}
