// Package apierror maps orchestrator errors to HTTP responses.  Every
// error body has the shape {"error": CODE, "message": text}.
package apierror

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autoshop-identity/internal/service"
)

// Error codes returned to clients.
const (
	CodeDuplicateUsername   = "DUPLICATE_USERNAME"
	CodeDuplicateEmail      = "DUPLICATE_EMAIL"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInactiveAccount     = "INACTIVE_ACCOUNT"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInvalidSession      = "INVALID_SESSION"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeInvalidPrincipal    = "INVALID_PRINCIPAL"
	CodeInvalidRole         = "INVALID_ROLE"
	CodePrincipalNotFound   = "PRINCIPAL_NOT_FOUND"
	CodeValidation          = "VALIDATION_FAILED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeForbidden           = "FORBIDDEN"
	CodeTooManyRequests     = "TOO_MANY_REQUESTS"
	CodeUnavailable         = "UNAVAILABLE"
	CodeInternal            = "INTERNAL"
)

// Body is the JSON error envelope.
type Body struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

var table = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrDuplicateUsername, http.StatusConflict, CodeDuplicateUsername},
	{service.ErrDuplicateEmail, http.StatusConflict, CodeDuplicateEmail},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
	{service.ErrInactiveAccount, http.StatusForbidden, CodeInactiveAccount},
	{service.ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken},
	{service.ErrInvalidSession, http.StatusUnauthorized, CodeInvalidSession},
	{service.ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized, CodeInvalidRefreshToken},
	{service.ErrInvalidPrincipal, http.StatusUnauthorized, CodeInvalidPrincipal},
	{service.ErrInvalidRole, http.StatusBadRequest, CodeInvalidRole},
	{service.ErrPrincipalNotFound, http.StatusNotFound, CodePrincipalNotFound},
	{service.ErrValidation, http.StatusBadRequest, CodeValidation},
	{service.ErrUnavailable, http.StatusServiceUnavailable, CodeUnavailable},
}

// Classify returns the status and code for err.  Unknown errors are 500.
func Classify(err error) (int, string) {
	status, code, _ := classify(err)
	return status, code
}

func classify(err error) (int, string, error) {
	for _, row := range table {
		if errors.Is(err, row.err) {
			return row.status, row.code, row.err
		}
	}
	return http.StatusInternalServerError, CodeInternal, nil
}

// Write renders err.  The message is the matched sentinel's text, never
// the wrapped chain, so token parser and driver details stay server side.
func Write(c echo.Context, err error) error {
	status, code, sentinel := classify(err)
	body := Body{Error: code}
	switch {
	case status == http.StatusServiceUnavailable:
		body.Message = "service temporarily unavailable"
	case sentinel == nil:
		body.Message = "internal error"
	default:
		body.Message = sentinel.Error()
	}
	if code == CodeValidation {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			body.Fields = make(map[string]string, len(verrs))
			for field, ferr := range verrs {
				body.Fields[field] = ferr.Error()
			}
		}
	}
	return c.JSON(status, body)
}

// New writes an error that did not come from the orchestrator.
func New(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Body{Error: code, Message: message})
}
