package errors

import (
	"errors"
	"fmt"
)

// Common error types for the balance client
var (
	// Session errors
	ErrSessionEmpty        = errors.New("session is empty")
	ErrSessionIncomplete   = errors.New("session is partially populated")
	ErrSessionInvalid      = errors.New("session invalid")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrReauthRequired      = errors.New("reauthentication required")

	// Login errors
	ErrInvalidAccount = errors.New("account must be an email address or an 11 digit phone number")
	ErrNoSelfMember   = errors.New("no member flagged as self in login response")
	ErrMissingTokens  = errors.New("login response is missing tokens")

	// Transport errors
	ErrCircuitOpen = errors.New("vendor api circuit open")

	// Store errors
	ErrNotFound = errors.New("not found")
	ErrSealed   = errors.New("unable to open sealed value")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
