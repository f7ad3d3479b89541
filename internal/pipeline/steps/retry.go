package steps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/jonathan/content-pipeline/internal/logger"
)

// ErrorClass groups failures for retry decisions.
type ErrorClass string

// Error classes
const (
	ClassTimeout     ErrorClass = "timeout"
	ClassRateLimit   ErrorClass = "rate_limit"
	ClassServerError ErrorClass = "server_error"
	ClassOther       ErrorClass = "other"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
	RetryOn    []ErrorClass
}

// Retry presets
var (
	RetryFast = RetryPolicy{
		Name:       "fast",
		MaxRetries: 1,
		BaseDelay:  500 * time.Millisecond,
		Timeout:    10 * time.Second,
		RetryOn:    []ErrorClass{ClassTimeout, ClassServerError},
	}
	RetryStandard = RetryPolicy{
		Name:       "standard",
		MaxRetries: 2,
		BaseDelay:  time.Second,
		Timeout:    30 * time.Second,
		RetryOn:    []ErrorClass{ClassTimeout, ClassRateLimit, ClassServerError},
	}
	RetryExpensive = RetryPolicy{
		Name:       "expensive",
		MaxRetries: 1,
		BaseDelay:  3 * time.Second,
		Timeout:    60 * time.Second,
		RetryOn:    []ErrorClass{ClassTimeout, ClassRateLimit},
	}
)

// WithTimeout returns a copy of the policy with a different per-attempt timeout.
func (p RetryPolicy) WithTimeout(d time.Duration) RetryPolicy {
	p.Timeout = d
	return p
}

// HTTPStatusError is a failed call to an HTTP API.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPStatusError) Unwrap() error { return e.Err }

// HTTPStatus returns the response status code.
func (e *HTTPStatusError) HTTPStatus() int { return e.StatusCode }

// Classify maps an error to its retry class. Any error in the chain with an
// HTTPStatus method is classified by its status code.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		switch code := withStatus.HTTPStatus(); {
		case code == http.StatusTooManyRequests:
			return ClassRateLimit
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return ClassTimeout
		case code >= 500:
			return ClassServerError
		}
	}
	return ClassOther
}

// WithRetry calls fn until it succeeds, the error is not retryable under the
// policy, or the retries run out. Each attempt gets its own timeout, capped
// by budget when one is given. Rate-limited attempts wait twice the base delay.
func WithRetry[T any](ctx context.Context, log *logger.Logger, name string, policy RetryPolicy, budget *TimeBudget, fn func(ctx context.Context) (T, error)) (T, error) {
	if log == nil {
		log = logger.Nop()
	}
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		timeout := policy.Timeout
		if budget != nil {
			timeout = budget.Cap(timeout)
		}

		v, err := callWithTimeout(ctx, timeout, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		class := Classify(err)
		if attempt == policy.MaxRetries || !slices.Contains(policy.RetryOn, class) {
			break
		}
		delay := policy.BaseDelay
		if class == ClassRateLimit {
			delay *= 2
		}
		log.Warn("step attempt failed, retrying",
			"step", name,
			"attempt", attempt+1,
			"max_attempts", policy.MaxRetries+1,
			"class", class,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w", name, lastErr)
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("%s: %w", name, lastErr)
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(actx)
	if err != nil && actx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w (%w)", timeout, context.DeadlineExceeded, err)
	}
	return v, err
}
