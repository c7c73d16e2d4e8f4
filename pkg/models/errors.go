package models

import "errors"

// Error code constants for standardized upstream error handling. The two API
// clients map vendor-specific failures to one of these codes; the aggregator
// and handlers classify via the Is* helpers without inspecting fields.
const (
	ErrCodeConnection = "connection_refused"
	ErrCodeAuth       = "auth_failed"
	ErrCodeRateLimit  = "rate_limited"
	ErrCodeNotFound   = "not_found"
	ErrCodeValidation = "validation_failed"
	ErrCodeUpstream   = "upstream_error"
)

// SourceError is a typed error from a monitoring source (local controller or
// cloud fleet API).
type SourceError struct {
	Code       string // One of the ErrCode* constants.
	Message    string // Human-readable description.
	Hint       string // Remediation hint, set for auth failures.
	StatusCode int    // HTTP status for upstream errors, 0 otherwise.
	Err        error  // Underlying error (may be nil).
}

func (e *SourceError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a typed source error.
func NewSourceError(code, message string, err error) *SourceError {
	return &SourceError{Code: code, Message: message, Err: err}
}

// NewAuthError creates an auth failure carrying a remediation hint.
func NewAuthError(message, hint string) *SourceError {
	return &SourceError{Code: ErrCodeAuth, Message: message, Hint: hint}
}

// IsConnectionError reports whether err is a connection-refused failure.
func IsConnectionError(err error) bool {
	return hasCode(err, ErrCodeConnection)
}

// IsAuthError reports whether err is an authentication/authorization failure.
func IsAuthError(err error) bool {
	return hasCode(err, ErrCodeAuth)
}

// IsRateLimited reports whether err is an upstream rate limit.
func IsRateLimited(err error) bool {
	return hasCode(err, ErrCodeRateLimit)
}

// IsNotFound reports whether err is an HTTP 404 from the source.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidationError reports whether err is a rejected input, raised before
// any I/O took place.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func hasCode(err error, code string) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Code == code
}
