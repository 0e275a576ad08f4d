package service

import (
	"errors"
	"fmt"
)

// Registration conflicts.
var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
)

// Login rejections.  Unknown principal and wrong password share
// ErrInvalidCredentials.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

// Token validation rejections.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSession = errors.New("session not found")
	ErrTokenExpired   = errors.New("session expired")
)

// Refresh rejections.
var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidPrincipal    = errors.New("principal missing or inactive")
)

var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrValidation        = errors.New("validation failed")
)

// ErrUnavailable marks infrastructure faults (store unreachable, query
// failed).  These are retryable by the caller and are never a security
// rejection.
var ErrUnavailable = errors.New("service unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
