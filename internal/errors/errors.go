package errors

import (
	"errors"
	"fmt"
)

// Common error types for the portal client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrRefreshFailed      = errors.New("refresh failed")

	// Request errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrNetwork      = errors.New("network error")
	ErrServer       = errors.New("server error")

	// Token store errors
	ErrNoToken = errors.New("no stored token")
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
