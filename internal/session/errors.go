// Package session establishes an authenticated context against the reading
// service, either by replaying saved cookies or by signing in through a
// live browser.
package session

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies authentication failures.
type AuthErrorKind string

const (
	InvalidCredentials AuthErrorKind = "invalid_credentials"
	MFARequired        AuthErrorKind = "mfa_required"
	CaptchaRequired    AuthErrorKind = "captcha_required"
	Timeout            AuthErrorKind = "timeout"
)

// AuthError is a terminal authentication failure.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("authentication failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may be retried without a human.
func (e *AuthError) Retryable() bool { return e.Kind == Timeout }

// NeedsHuman reports whether an operator has to step in.
func (e *AuthError) NeedsHuman() bool {
	return e.Kind == MFARequired || e.Kind == CaptchaRequired
}

var (
	// ErrNoCachedSession means the cookie file is absent, empty or unreadable.
	ErrNoCachedSession = errors.New("no cached session")
	// ErrReplayRejected means saved cookies no longer open the library.
	ErrReplayRejected = errors.New("saved session rejected")
	// ErrNoStrategy means no strategy could be attempted.
	ErrNoStrategy = errors.New("no authentication strategy available")
)

// KindOf returns the AuthErrorKind carried by err, if any.
func KindOf(err error) (AuthErrorKind, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}
