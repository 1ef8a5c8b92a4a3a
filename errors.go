package amee

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants carried by ClientError.Type.
const (
	// ErrorTypeAuth covers rejected credentials and rejected fresh tokens.
	ErrorTypeAuth = "Auth"
	// ErrorTypeAPI covers non-2xx responses from non-auth endpoints.
	ErrorTypeAPI = "API"
	// ErrorTypeDecode covers response bodies that are not valid JSON.
	ErrorTypeDecode = "Decode"
	// ErrorTypeNetwork covers transport-level failures.
	ErrorTypeNetwork = "Network"
	// ErrorTypeCache covers cache backend failures. Never surfaced by the
	// pipeline, which degrades to a network call instead.
	ErrorTypeCache = "Cache"
	// ErrorTypeValidation covers client configuration and bad request
	// descriptors (e.g. a relative path).
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrAuthFailed is returned when AMEE rejects the credentials, or a
	// freshly issued token.
	ErrAuthFailed = errors.New("amee: authentication failed")

	// ErrDeleted is returned when a Profile or Item facade is used after
	// its Delete method succeeded.
	ErrDeleted = errors.New("amee: resource has been deleted")

	// ErrIncompleteDrilldown is returned by DrillComplete when the supplied
	// choices do not narrow the drilldown to a single data item.
	ErrIncompleteDrilldown = errors.New("amee: incomplete drilldown")
)

// ClientError is the error type produced by the client. Type distinguishes
// the failure class; the remaining fields carry request diagnostics.
type ClientError struct {
	Type      string
	Message   string
	Cause     error
	RequestID string
	Method    string
	Path      string

	// StatusCode and Body are set for API and auth failures: the HTTP
	// status and (a bounded prefix of) the response body.
	StatusCode int
	Body       string

	Timestamp time.Time
	Duration  time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.Path != "" {
		info += fmt.Sprintf("Path: %s\n", e.Path)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Body != "" {
		info += fmt.Sprintf("Body: %s\n", e.Body)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	return isErrorType(err, ErrorTypeAuth) || errors.Is(err, ErrAuthFailed)
}

// IsAPIError reports whether err is a non-2xx API response. StatusCode and
// Body on the unwrapped *ClientError carry the details.
func IsAPIError(err error) bool {
	return isErrorType(err, ErrorTypeAPI)
}

// IsDecodeError reports whether err means the response body was not JSON.
func IsDecodeError(err error) bool {
	return isErrorType(err, ErrorTypeDecode)
}

func isErrorType(err error, errorType string) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == errorType
	}
	return false
}
