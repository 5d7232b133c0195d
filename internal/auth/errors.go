package auth

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// inactive login triples alike so that responses never reveal which
	// part of the check failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid indicates a malformed or badly signed token.
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	// Clients use the distinction to decide between refresh and relogin.
	ErrTokenExpired = errors.New("auth: token expired")

	ErrSlugTaken  = errors.New("auth: tenant slug already taken")
	ErrEmailTaken = errors.New("auth: user already exists")

	ErrTenantInactive = errors.New("auth: tenant inactive")
	ErrUserInactive   = errors.New("auth: user inactive")

	ErrNotFound = errors.New("auth: not found")

	// ErrMalformedHash indicates a stored password hash that cannot be
	// parsed. Distinct from a verification mismatch.
	ErrMalformedHash = errors.New("auth: malformed password hash")
)

// ValidationError aggregates individual input rule violations.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "auth: validation failed"
	}
	return "auth: validation failed: " + strings.Join(e.Violations, "; ")
}
