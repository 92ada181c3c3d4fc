// Package tmerrors defines the token manager's error taxonomy (spec.md §7)
// as a leaf package with no dependency on the rest of the tree, so both
// the internal components and the public facade can construct and check
// against the same concrete types without an import cycle.
package tmerrors

import "fmt"

// UnrecognizedStorageOption is returned when a configured storage option
// names no known backend variant. Fatal at construction.
type UnrecognizedStorageOption struct {
	Option string
}

func (e *UnrecognizedStorageOption) Error() string {
	return fmt.Sprintf("tokenmanager: unrecognized storage option %q", e.Option)
}

// StorageUnavailable is returned when every backend in the fallback
// cascade failed to initialize. Fatal at construction.
type StorageUnavailable struct {
	Tried []string
	Cause error
}

func (e *StorageUnavailable) Error() string {
	return fmt.Sprintf("tokenmanager: no storage backend available (tried %v): %v", e.Tried, e.Cause)
}

func (e *StorageUnavailable) Unwrap() error { return e.Cause }

// UnparseableStorageError is raised when the JSON blob at storageKey
// cannot be parsed. The backend itself is left untouched.
type UnparseableStorageError struct {
	StorageKey string
	Cause      error
}

func (e *UnparseableStorageError) Error() string {
	return fmt.Sprintf("tokenmanager: unparseable storage at key %q: %v", e.StorageKey, e.Cause)
}

func (e *UnparseableStorageError) Unwrap() error { return e.Cause }

// InvalidToken is returned when add/setTokens receives a value missing
// scopes, expiresAt, or a discriminant field.
type InvalidToken struct {
	Key    string
	Reason string
}

func (e *InvalidToken) Error() string {
	return fmt.Sprintf("tokenmanager: invalid token for key %q: %s", e.Key, e.Reason)
}

// NoTokenForKey is returned when renew is called on a key with no stored
// token.
type NoTokenForKey struct {
	Key string
}

func (e *NoTokenForKey) Error() string {
	return fmt.Sprintf("tokenmanager: no token stored for key %q", e.Key)
}

// TooManyRenewRequests is emitted (never thrown synchronously) when the
// RenewRateLimiter trips.
type TooManyRenewRequests struct {
	WindowEvents int
	Span         string
}

func (e *TooManyRenewRequests) Error() string {
	return fmt.Sprintf("tokenmanager: too many renew requests (%d events within %s)", e.WindowEvents, e.Span)
}

// OAuthError is propagated from TokenClient.Renew, augmented with the
// tokenKey that triggered the failing renewal.
type OAuthError struct {
	TokenKey    string
	ErrorCode   string
	ErrorSummary string
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("tokenmanager: oauth error for key %q: %s (%s)", e.TokenKey, e.ErrorSummary, e.ErrorCode)
}

// AuthSdkError is propagated from TokenClient.Renew for auth-SDK-level
// (as opposed to provider-level) failures.
type AuthSdkError struct {
	TokenKey     string
	ErrorCode    string
	ErrorSummary string
	ErrorLink    string
	ErrorID      string
	ErrorCauses  []string
}

func (e *AuthSdkError) Error() string {
	return fmt.Sprintf("tokenmanager: auth sdk error for key %q: %s (%s)", e.TokenKey, e.ErrorSummary, e.ErrorCode)
}

// CallbackInProgress is returned by Get when the host URL indicates an
// in-progress OAuth callback (a "code=" query parameter with PKCE
// configured).
type CallbackInProgress struct{}

func (e *CallbackInProgress) Error() string {
	return "tokenmanager: get() called while an OAuth callback is in progress"
}

// WithTokenKey returns a copy of err tagged with key, for OAuthError and
// AuthSdkError. Other error types are returned unchanged — this mirrors
// spec.md §4.5's "tag the error with tokenKey" step, which only applies
// to the two collaborator-originated error classes.
func WithTokenKey(err error, key string) error {
	switch e := err.(type) {
	case *OAuthError:
		tagged := *e
		tagged.TokenKey = key
		return &tagged
	case *AuthSdkError:
		tagged := *e
		tagged.TokenKey = key
		return &tagged
	default:
		return err
	}
}
