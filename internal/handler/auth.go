package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autoshop-identity/internal/apierror"
	"github.com/iliyamo/autoshop-identity/internal/middleware"
	"github.com/iliyamo/autoshop-identity/internal/model"
	"github.com/iliyamo/autoshop-identity/internal/service"
	"github.com/iliyamo/autoshop-identity/internal/token"
)

// AuthAPI is the orchestrator surface the handlers call.
type AuthAPI interface {
	Register(ctx context.Context, in service.RegisterInput) (model.PublicPrincipal, error)
	Login(ctx context.Context, in service.LoginInput) (service.LoginResult, error)
	ValidateToken(ctx context.Context, raw string) (*token.Claims, error)
	RefreshToken(ctx context.Context, raw string) (service.RefreshResult, error)
	Logout(ctx context.Context, raw string) error
	UpdatePrincipal(ctx context.Context, id string, upd model.PrincipalUpdate) (model.PublicPrincipal, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc     AuthAPI
	Timeout time.Duration // per-request bound on store calls
}

func NewAuthHandler(svc AuthAPI) *AuthHandler {
	return &AuthHandler{Svc: svc, Timeout: 5 * time.Second}
}

// ----- DTOs -----

type loginReq struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type claimsResp struct {
	PrincipalID string     `json:"principal_id"`
	Username    string     `json:"username"`
	Role        model.Role `json:"role"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func (h *AuthHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

func badBody(c echo.Context) error {
	return apierror.New(c, http.StatusBadRequest, apierror.CodeBadRequest, "invalid body")
}

// Register: create a principal; no tokens are issued.
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.Role = model.Role(strings.ToUpper(strings.TrimSpace(string(req.Role))))

	ctx, cancel := h.ctx(c)
	defer cancel()

	p, err := h.Svc.Register(ctx, req)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Login: verify credentials and open a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Svc.Login(ctx, service.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		ClientAddr: c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Refresh: mint a new access token WITHOUT rotating the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return apierror.New(c, http.StatusBadRequest, apierror.CodeBadRequest, "refresh_token required")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Svc.RefreshToken(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Logout: delete the session bound to the bearer token.  Unknown tokens
// still get 204.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, ok := middleware.BearerToken(c.Request())
	if !ok {
		return apierror.New(c, http.StatusUnauthorized, apierror.CodeMissingToken, "missing bearer token")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Svc.Logout(ctx, raw); err != nil {
		return apierror.Write(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Validate: report the claims of a live access token.  Peer services call
// this when they cannot mount SessionAuth themselves.
func (h *AuthHandler) Validate(c echo.Context) error {
	raw, ok := middleware.BearerToken(c.Request())
	if !ok {
		return apierror.New(c, http.StatusUnauthorized, apierror.CodeMissingToken, "missing bearer token")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	claims, err := h.Svc.ValidateToken(ctx, raw)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, claimsResp{
		PrincipalID: claims.PrincipalID(),
		Username:    claims.Username,
		Role:        claims.Role,
		ExpiresAt:   claims.ExpiresAt.Time,
	})
}

// Me: echo back the identity SessionAuth put in the context.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"principal_id": middleware.PrincipalID(c),
		"username":     c.Get(middleware.CtxUsername),
		"role":         middleware.Role(c),
	})
}
