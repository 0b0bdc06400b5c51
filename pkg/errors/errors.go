package errors

import (
	"errors"
	"fmt"
)

// ErrorType is the broad class of a failure
type ErrorType string

const (
	ErrorTypeAuth    ErrorType = "auth"
	ErrorTypeParsing ErrorType = "parsing"
	ErrorTypeFetch   ErrorType = "fetch"
)

// Reason classifies a failure within its type
type Reason string

const (
	// auth
	ReasonMissingBootstrap   Reason = "missing_bootstrap_data"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonUnexpected         Reason = "unexpected_failure"
	ReasonChallengeUnread    Reason = "challenge_unreadable"
	ReasonChallengeTimeout   Reason = "challenge_timeout"
	ReasonInvalidCode        Reason = "invalid_verification_code"

	// parsing
	ReasonAnchorNotFound Reason = "anchor_not_found"
	ReasonInvalidJSON    Reason = "invalid_json"
	ReasonMissingField   Reason = "missing_field"

	// fetch
	ReasonNotFound        Reason = "not_found"
	ReasonNoLiveStream    Reason = "no_live_stream"
	ReasonNoData          Reason = "no_data"
	ReasonInternal        Reason = "internal"
	ReasonUnauthenticated Reason = "unauthenticated"
)

// Error is the single error type returned by the session and feed packages.
// Code carries the HTTP status when one was received.
type Error struct {
	Type    ErrorType
	Reason  Reason
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on type and, when the target has one, on reason. Message and code are ignored.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Reason == "" || e.Reason == t.Reason
}

// WithCode returns the error with its HTTP status set
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// Wrap records the underlying cause
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// NewAuth creates an authentication error
func NewAuth(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeAuth, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// NewParse creates a parsing error
func NewParse(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeParsing, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// NewFetch creates a fetch error
func NewFetch(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeFetch, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is
var (
	ErrAuth  = &Error{Type: ErrorTypeAuth}
	ErrParse = &Error{Type: ErrorTypeParsing}
	ErrFetch = &Error{Type: ErrorTypeFetch}

	ErrMissingBootstrap   = &Error{Type: ErrorTypeAuth, Reason: ReasonMissingBootstrap}
	ErrInvalidCredentials = &Error{Type: ErrorTypeAuth, Reason: ReasonInvalidCredentials}
	ErrRateLimited        = &Error{Type: ErrorTypeAuth, Reason: ReasonRateLimited}
	ErrChallengeTimeout   = &Error{Type: ErrorTypeAuth, Reason: ReasonChallengeTimeout}
	ErrInvalidCode        = &Error{Type: ErrorTypeAuth, Reason: ReasonInvalidCode}

	ErrNotFound        = &Error{Type: ErrorTypeFetch, Reason: ReasonNotFound}
	ErrNoLiveStream    = &Error{Type: ErrorTypeFetch, Reason: ReasonNoLiveStream}
	ErrNoData          = &Error{Type: ErrorTypeFetch, Reason: ReasonNoData}
	ErrUnauthenticated = &Error{Type: ErrorTypeFetch, Reason: ReasonUnauthenticated}
)

// ReasonOf returns the reason of the first *Error in err's chain, or "" if there is none
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsRetryable reports whether a caller may reasonably retry the operation that produced err.
// Only fetch failures caused by the network, throttling or the server qualify.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Type != ErrorTypeFetch || e.Reason != ReasonInternal {
		return false
	}
	return IsRetryableStatusCode(e.Code)
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
