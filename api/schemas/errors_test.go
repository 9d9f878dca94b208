// File: api/schemas/errors_test.go
package schemas

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableKinds(t *testing.T) {
	retryable := []ErrorKind{ErrNetwork, ErrTimeout, ErrRateLimit}
	terminal := []ErrorKind{
		ErrFormNotFound, ErrFieldNotFound, ErrValidation,
		ErrCaptcha, ErrAuthentication, ErrSystemResource,
	}

	for _, k := range retryable {
		assert.True(t, k.Retryable(), "%s should be retryable", k)
	}
	for _, k := range terminal {
		assert.False(t, k.Retryable(), "%s should not be retryable", k)
	}
}

func TestClassifySurvivesWrapping(t *testing.T) {
	base := Kindf(ErrCaptcha, "captcha on %s", "https://example.com")
	wrapped := fmt.Errorf("attempt 2 failed: %w", fmt.Errorf("inner: %w", base))

	assert.Equal(t, ErrCaptcha, ClassifyError(wrapped))
}

func TestClassifyContextDeadline(t *testing.T) {
	err := fmt.Errorf("navigation: %w", context.DeadlineExceeded)
	assert.Equal(t, ErrTimeout, ClassifyError(err))
}

func TestClassifyDefaultsToNetwork(t *testing.T) {
	assert.Equal(t, ErrNetwork, ClassifyError(errors.New("connection reset by peer")))
}

func TestKindErrorUnwraps(t *testing.T) {
	sentinel := errors.New("boom")
	err := NewKindError(ErrValidation, sentinel)

	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "validation_failed")
}

func TestDefaultSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, ErrSystemResource.DefaultSeverity())
	assert.Equal(t, SeverityHigh, ErrCaptcha.DefaultSeverity())
	assert.Equal(t, SeverityMedium, ErrFormNotFound.DefaultSeverity())
	assert.Equal(t, SeverityLow, ErrNetwork.DefaultSeverity())
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
}
