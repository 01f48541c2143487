package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrRetriesExhausted marks a call that kept failing with retryable errors.
var ErrRetriesExhausted = errors.New("model call retries exhausted")

// RetryPolicy controls how transient model-call failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// AttemptTimeout bounds each individual call (0 disables the per-call timeout).
	AttemptTimeout time.Duration

	// Wait tables are indexed by attempt number; the last entry repeats.
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration
	TransientWaits   []time.Duration
}

// DefaultRetryPolicy mirrors the waits that kept long batch runs alive against hosted models.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		AttemptTimeout:   45 * time.Second,
		RateLimitWaits:   []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second},
		ServerErrorWaits: []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
		TransientWaits:   []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
	}
}

// CallWithRetry runs fn until it succeeds, fails with a non-retryable error, or the policy
// runs out of attempts. Each attempt gets its own timeout derived from ctx.
func CallWithRetry(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, name string, fn func(context.Context) (string, error)) (string, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := callOnce(ctx, policy.AttemptTimeout, fn)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err

		wait, retryable := retryWait(policy, err, attempt)
		if !retryable {
			return "", err
		}
		if attempt == maxAttempts-1 {
			break
		}

		logger.Warn().
			Err(err).
			Str("call", name).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Dur("wait", wait).
			Msg("model call failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

func callOnce(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func retryWait(policy RetryPolicy, err error, attempt int) (time.Duration, bool) {
	switch {
	case isRateLimitError(err):
		return pick(policy.RateLimitWaits, attempt), true
	case isServerError(err):
		return pick(policy.ServerErrorWaits, attempt), true
	case isTransientError(err):
		return pick(policy.TransientWaits, attempt), true
	default:
		return 0, false
	}
}

func pick(waits []time.Duration, attempt int) time.Duration {
	if len(waits) == 0 {
		return 0
	}
	if attempt >= len(waits) {
		return waits[len(waits)-1]
	}
	return waits[attempt]
}

// IsRetryable reports whether err is a rate-limit, server or transport failure.
func IsRetryable(err error) bool {
	return isRateLimitError(err) || isServerError(err) || isTransientError(err)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "quota")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "server_error")
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"temporary failure",
		"unexpected eof",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// Retrying wraps a Completer with CallWithRetry.
type Retrying struct {
	Next   Completer
	Policy RetryPolicy
	Logger zerolog.Logger
}

func (r Retrying) Complete(ctx context.Context, req Request) (string, error) {
	if r.Next == nil {
		return "", errNilCompleter
	}
	return CallWithRetry(ctx, r.Policy, r.Logger, req.Name, func(ctx context.Context) (string, error) {
		return r.Next.Complete(ctx, req)
	})
}
