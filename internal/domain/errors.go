package domain

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned before any network call when the
// provider credentials are incomplete.
var ErrMissingCredentials = errors.New("provider credentials are not configured")

// AuthError is returned when the provider rejects the login or answers it
// without an access token.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider login failed: status=%d body=%s", e.Status, e.Body)
}

// ProviderError is a non-2xx answer from a provider call.
type ProviderError struct {
	Op     string
	Status int
	Body   string
	Classification
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: status=%d reason=%s", e.Op, e.Status, e.Reason)
}

// ErrorKind groups errors by the component boundary that produced them.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindConfig     ErrorKind = "config"
	KindAuth       ErrorKind = "auth"
	KindProvider   ErrorKind = "provider"
	KindUnexpected ErrorKind = "unexpected"
)

// KindOf classifies err for callers that branch on the kind of failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrMissingCredentials) {
		return KindConfig
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return KindAuth
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return KindProvider
	}
	return KindUnexpected
}
