package taskapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 200ms)
	MaxInterval         time.Duration // Maximum retry interval (default 5s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 30s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration. The total retry
// time stays well under typical poll intervals multiplied by a few ticks so a
// stuck fetch never piles up behind the next one.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// CircuitBreakerRegistry manages per-host circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry. A nil
// logger uses slog.Default().
func NewCircuitBreakerRegistry(logger *slog.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for the given API host.
// Creates a new one if it doesn't exist.
func (r *CircuitBreakerRegistry) Get(host string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[host]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,                // One probe request in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip circuit after 5 consecutive failures
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "host", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// The caller gave up; says nothing about the server. A per-attempt
			// timeout is not wrapped and counts as a failure.
			var canceled *callerCanceledError
			if errors.As(err, &canceled) {
				return true
			}
			// A well-formed client error means the server is healthy
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return true
			}
			// So does an answer we could not decode
			var decodeErr *DecodeError
			return errors.As(err, &decodeErr)
		},
	})

	r.breakers[host] = cb
	return cb
}

// callerCanceledError marks an attempt cut short because the caller's
// context ended.
type callerCanceledError struct{ err error }

func (e *callerCanceledError) Error() string { return e.err.Error() }
func (e *callerCanceledError) Unwrap() error { return e.err }

// doWithRetry runs op with exponential backoff retry and circuit breaker
// protection. Errors for which op reports a permanent failure are returned
// immediately.
func doWithRetry[T any](ctx context.Context, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var out T

	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			v, err := op(ctx)
			if err != nil && ctx.Err() != nil {
				return v, &callerCanceledError{err: err}
			}
			return v, err
		})

		if err != nil {
			var canceled *callerCanceledError
			if errors.As(err, &canceled) {
				return backoff.Permanent(canceled.err)
			}

			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}

			// Context cancelled - stop retrying
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}

			if !retryable(err) {
				return backoff.Permanent(err)
			}

			return err
		}

		out = result.(T)
		return nil
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = retryCfg.InitialInterval
	backoffPolicy.MaxInterval = retryCfg.MaxInterval
	backoffPolicy.MaxElapsedTime = retryCfg.MaxElapsedTime
	backoffPolicy.Multiplier = retryCfg.Multiplier
	backoffPolicy.RandomizationFactor = retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(backoffPolicy, ctx))
	return out, err
}

// retryable reports whether a failed attempt is worth repeating. Transport
// errors and server-side failures are; client errors and undecodable bodies
// are not.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var decodeErr *DecodeError
	return !errors.As(err, &decodeErr)
}

// temporaryStatus reports whether an HTTP status signals a transient failure.
func temporaryStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
