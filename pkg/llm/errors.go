package llm

import "errors"

// Provider error codes. Adapters translate their backend's native failures
// into exactly one of these so callers can react uniformly.
const (
	ErrCodeAuthentication = "authentication_error"
	ErrCodeRateLimit      = "rate_limit_exceeded"
	ErrCodeModelNotFound  = "model_not_found"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeContextLength  = "context_length_exceeded"
	ErrCodeServerError    = "server_error"
	ErrCodeTimeout        = "timeout"
)

// ProviderError is a classified backend failure. Callers should use the
// Is helpers rather than matching on fields.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err under one of the ErrCode constants.
func NewProviderError(code, message string, err error) *ProviderError {
	return &ProviderError{Code: code, Message: message, Err: err}
}

// codeOf returns the error's provider code, or "" when err is not a
// ProviderError.
func codeOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsAuthenticationError reports a rejected or missing credential.
func IsAuthenticationError(err error) bool { return codeOf(err) == ErrCodeAuthentication }

// IsRateLimitError reports backend throttling.
func IsRateLimitError(err error) bool { return codeOf(err) == ErrCodeRateLimit }

// IsModelNotFoundError reports a request for a model the backend lacks.
func IsModelNotFoundError(err error) bool { return codeOf(err) == ErrCodeModelNotFound }

// IsContextLengthError reports a prompt too large for the model's window.
func IsContextLengthError(err error) bool { return codeOf(err) == ErrCodeContextLength }

// IsServerError reports a failure inside the backend.
func IsServerError(err error) bool { return codeOf(err) == ErrCodeServerError }

// IsTimeoutError reports that the backend did not answer in time.
func IsTimeoutError(err error) bool { return codeOf(err) == ErrCodeTimeout }

// IsRetryable reports whether the same call may succeed if repeated.
func IsRetryable(err error) bool {
	switch codeOf(err) {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeTimeout:
		return true
	}
	return false
}
