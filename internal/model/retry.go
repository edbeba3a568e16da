package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/candor0/candor/internal/log"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for model API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError determines if an error should trigger a retry. An
// *AdapterError carries an explicit classification; everything else falls
// back to message inspection.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	var aerr *AdapterError
	if errors.As(err, &aerr) {
		return aerr.Transient
	}

	// Cancellation means the caller gave up; a deadline on a single
	// step is a timeout blip worth retrying.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()

	// Rate limit errors
	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}

	// Transient server errors
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}

	// Network errors
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// RetryAdapter decorates an Adapter with exponential backoff on transient
// failures. Non-transient errors fail immediately; a transient error
// exhausts the retry budget before surfacing.
type RetryAdapter struct {
	inner  Adapter
	cfg    RetryConfig
	logger log.Logger
}

// WithRetry wraps an adapter. A zero-valued cfg uses DefaultRetryConfig.
func WithRetry(inner Adapter, cfg RetryConfig, logger log.Logger) *RetryAdapter {
	if cfg.MaxRetries == 0 {
		cfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &RetryAdapter{inner: inner, cfg: cfg, logger: logger}
}

// Step executes the wrapped adapter with retry.
func (r *RetryAdapter) Step(ctx context.Context, messages []Message) (*StepResult, error) {
	var lastErr error
	delay := r.cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		result, err := r.inner.Step(ctx, messages)
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("model step succeeded after retry",
					"attempts", attempt+1,
					"elapsed", time.Since(start))
			}
			return result, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, err
		}

		if attempt == r.cfg.MaxRetries {
			break
		}

		r.logger.Debug("retrying model step after error",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.cfg.MaxInterval)
		}
	}

	return nil, fmt.Errorf("model step after %d retries (elapsed: %v): %w",
		r.cfg.MaxRetries, time.Since(start), lastErr)
}
