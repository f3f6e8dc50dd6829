package pstryk

import (
	"fmt"
	"net/http"
)

// AuthError represents a failed login against the auth endpoint. It is the
// only error in the package that callers may treat as fatal, and only when
// it comes from the very first authentication.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RefreshError represents a failed token refresh. Recoverable: the caller
// falls back to a full re-authentication.
type RefreshError struct {
	StatusCode int
	Err        error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token refresh failed (status %d)", e.StatusCode)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// FetchError means a single field group is unavailable this cycle. The
// snapshot keeps the stale value for that group.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed (status %d): %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s failed (status %d)", e.Endpoint, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ChannelError represents a dropped or rejected push connection. Never
// surfaced to the host; the supervising loop backs off and reconnects.
type ChannelError struct {
	Op         string // "resolve", "handshake", "read"
	StatusCode int    // handshake HTTP status, 0 otherwise
	Err        error
}

func (e *ChannelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push channel %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("push channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// AuthRejected reports whether the handshake was rejected with a 500-class
// status, which the upstream uses for expired connection tokens.
func (e *ChannelError) AuthRejected() bool {
	return e.Op == "handshake" && e.StatusCode >= http.StatusInternalServerError
}

// ParseError represents a malformed payload. The message is discarded and
// the connection stays open.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
