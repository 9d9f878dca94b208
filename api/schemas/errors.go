package schemas

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTemplateNotFound is returned by template stores when no template is
// recorded for a URL; jobs seeing it fall back to live detection.
var ErrTemplateNotFound = errors.New("template not found")

// ErrorKind tags a classified failure. The kind decides the retry
// disposition, so classification happens as close to the failure site as
// possible and travels with the error.
type ErrorKind string

const (
	ErrNetwork        ErrorKind = "network_error"
	ErrFormNotFound   ErrorKind = "form_not_found"
	ErrFieldNotFound  ErrorKind = "field_not_found"
	ErrValidation     ErrorKind = "validation_failed"
	ErrCaptcha        ErrorKind = "captcha_failed"
	ErrTimeout        ErrorKind = "timeout_error"
	ErrRateLimit      ErrorKind = "rate_limit_exceeded"
	ErrAuthentication ErrorKind = "authentication_failed"
	ErrSystemResource ErrorKind = "system_resource_error"
)

// Retryable reports whether a job failing with this kind should be
// re-attempted. rate_limit_exceeded is retryable but with a longer backoff;
// system_resource_error is session-fatal and handled above the job level.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrNetwork, ErrTimeout, ErrRateLimit:
		return true
	default:
		return false
	}
}

// Severity grades an ExecutionError for presentation layers.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// DefaultSeverity maps an error kind to its default severity.
func (k ErrorKind) DefaultSeverity() Severity {
	switch k {
	case ErrSystemResource:
		return SeverityCritical
	case ErrAuthentication, ErrCaptcha:
		return SeverityHigh
	case ErrFormNotFound, ErrValidation:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ExecutionError is a classified failure appended to a session's error list.
// Entries carry enough context for an external presentation layer to suggest
// a remediation without reaching into engine internals.
type ExecutionError struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Kind      ErrorKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// KindError wraps an underlying error with its taxonomy kind so the
// classification survives error wrapping across layers.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// NewKindError tags err with kind.
func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// Kindf builds a tagged error from a format string.
func Kindf(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ClassifyError extracts the taxonomy kind from err. Untagged context
// cancellations and deadline expiries map to timeout_error; anything else
// defaults to network_error, the most conservative retryable kind.
func ClassifyError(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrNetwork
}
