package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autoshop-identity/internal/apierror"
	"github.com/iliyamo/autoshop-identity/internal/model"
)

type updatePrincipalReq struct {
	Role   *model.Role `json:"role"`
	Active *bool       `json:"active"`
}

// UpdatePrincipal: PATCH /v1/admin/principals/:id.  Absent fields are left
// unchanged.
func (h *AuthHandler) UpdatePrincipal(c echo.Context) error {
	var req updatePrincipalReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	p, err := h.Svc.UpdatePrincipal(ctx, c.Param("id"), model.PrincipalUpdate{Role: req.Role, Active: req.Active})
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
