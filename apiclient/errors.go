package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError means no response was received: connection failure, reset, or
// the per-attempt timeout expired. Always eligible for retry.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a terminal non-2xx response.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s %s: server returned status %d: %s", e.Method, e.URL, e.Status, msg)
	}
	return fmt.Sprintf("%s %s: server returned status %d", e.Method, e.URL, e.Status)
}

// Message extracts the server's "message" (or "error") field from the body,
// falling back to the raw body when it is short plain text.
func (e *HTTPError) Message() string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		return envelope.Error
	}
	if len(e.Body) > 0 && len(e.Body) <= 200 {
		return string(e.Body)
	}
	return ""
}

// AuthReason classifies why authentication was lost.
type AuthReason int

const (
	// NoRefreshToken: a 401 arrived and there was no refresh token to use.
	NoRefreshToken AuthReason = iota + 1
	// RefreshFailed: the refresh call itself failed.
	RefreshFailed
	// ReauthRequired: the replay after a successful refresh was still rejected.
	ReauthRequired
)

func (r AuthReason) String() string {
	switch r {
	case NoRefreshToken:
		return "no refresh token"
	case RefreshFailed:
		return "refresh failed"
	case ReauthRequired:
		return "re-authentication required"
	default:
		return fmt.Sprintf("AuthReason(%d)", int(r))
	}
}

// AuthError is terminal. Stored credentials have been cleared and the
// session-expired signal has fired by the time a caller sees it.
type AuthError struct {
	Reason AuthReason
	Err    error
}

// Sentinels for errors.Is matching on the reason alone.
var (
	ErrNoRefreshToken = &AuthError{Reason: NoRefreshToken}
	ErrRefreshFailed  = &AuthError{Reason: RefreshFailed}
	ErrReauthRequired = &AuthError{Reason: ReauthRequired}
)

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication lost: %s: %v", e.Reason, e.Err)
	}
	return "authentication lost: " + e.Reason.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another *AuthError with the same reason.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Reason == e.Reason
}

// ValidationError is malformed input caught before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

func isUnauthorized(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusUnauthorized {
		return httpErr, true
	}
	return nil, false
}
