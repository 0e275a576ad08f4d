package token

import "errors"

// Verification failures.  Use errors.Is to check for them.
var (
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
	ErrMalformed        = errors.New("token: malformed")
)
