package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGenerationTimeout means the provider produced nothing within the
	// configured timeout. Retry-eligible: the next attempt may be faster.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrGenerationUnavailable means a transport or auth failure. Whether
	// a retry helps depends on the cause; auth failures never recover.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
)

// ClassifyError maps a raw provider error onto the pipeline's taxonomy.
// Deadline expiry becomes ErrGenerationTimeout; everything else becomes
// ErrGenerationUnavailable with the cause preserved for diagnostics.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeoutText(err) {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
}

func isTimeoutText(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled")
}

// IsRetryable reports whether a classified generation error is worth a
// corrective attempt. Timeouts and transient transport failures are;
// authentication failures are not.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrGenerationTimeout) {
		return true
	}
	if errors.Is(err, ErrGenerationUnavailable) {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
			strings.Contains(lower, "invalid api key") {
			return false
		}
		return true
	}
	return false
}
