package archive

import (
	"fmt"
	"time"
)

// AuthError reports credential rejection, a missing or expired
// anti-forgery token, or content that needs an authenticated session.
// It is never retried by the library; the caller re-authenticates or
// calls RefreshToken and tries again.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// auth error reasons used across the package
const (
	reasonNotAuthenticated = "requires an authenticated session"
	reasonStaleToken       = "invalid or expired token"
	reasonBadCredentials   = "invalid username or password"
	reasonRestricted       = "restricted content"
)

type HTTPErrorKind string

const (
	KindTransport HTTPErrorKind = "transport"
	KindStatus    HTTPErrorKind = "status"
	KindRateLimit HTTPErrorKind = "rate-limited"
	KindTimeout   HTTPErrorKind = "timeout"
)

// HTTPError reports a transport failure, a non-2xx response or remote
// throttling. RetryAfter carries the host's suggested wait for
// rate-limited responses when the header was present; the library never
// retries on its own.
type HTTPError struct {
	Kind       HTTPErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *HTTPError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s, retry after %s", msg, e.RetryAfter)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *HTTPError) Unwrap() error { return e.Err }

// ParseError reports a response that arrived fine but is missing
// structure the parser depends on, usually because the page layout
// changed or the content was removed.
type ParseError struct {
	URL     string
	Missing string
}

func (e *ParseError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("expected %s in response", e.Missing)
	}
	return fmt.Sprintf("%s: expected %s in response", e.URL, e.Missing)
}
