package errors

import "net/http"

// Error code constants.
// Errors carry code + message; handlers translate to HTTP responses.

// Admission error codes.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// Infrastructure error codes.
const (
	CodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
	CodePersistenceFault     = "PERSISTENCE_FAULT"
	CodeAppendFault          = "APPEND_FAULT"
	CodeInternal             = "INTERNAL_ERROR"
)

// Convenience constructors using predefined codes.

// ErrValidationFailed creates a 400 error carrying field diagnostics.
func ErrValidationFailed(fieldErrors []FieldError) *AppError {
	return BadRequest(CodeValidationFailed, "invalid payload").WithFieldErrors(fieldErrors)
}

// ErrRateLimitExceeded creates a 429 error.
func ErrRateLimitExceeded() *AppError {
	return TooManyRequests(CodeRateLimitExceeded, "rate limit exceeded")
}

// ErrTransportUnavailable wraps an infrastructure fault reaching Redis.
// The gateway fails closed on this error rather than bypassing the limiter.
func ErrTransportUnavailable(err error) *AppError {
	return Wrap(err, CodeTransportUnavailable, "upstream transport unavailable", http.StatusInternalServerError)
}
