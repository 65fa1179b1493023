// Package common defines shared constants and sentinel errors used across
// the TA system server. Callers should use errors.Is / errors.As to match
// these values; the HTTP layer is the only place they become status codes.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Credential errors. Wrong username, wrong password and non-local
	// accounts all collapse into ErrInvalidCredentials.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// OAuth flow errors.
	ErrUnknownProvider           = errors.New("unknown identity provider")
	ErrCSRFMismatch              = errors.New("invalid state parameter")
	ErrProviderExchangeFailed    = errors.New("token exchange failed")
	ErrProviderProfileIncomplete = errors.New("incomplete user information")

	// Session token errors.
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token decode error")

	// Access control errors.
	ErrForbidden   = errors.New("not allowed")
	ErrInvalidPath = errors.New("invalid path")
)

// Identity provider operations recorded in ProviderError.Op.
const (
	OpExchange = "token exchange"
	OpProfile  = "profile fetch"
)

// ProviderError reports a failed call to an identity provider. Status is the
// HTTP status returned by the provider, or 0 when no response was received.
type ProviderError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: provider returned status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap lets errors.Is match both the wrapped cause and
// ErrProviderExchangeFailed.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProviderExchangeFailed, e.Err}
}
