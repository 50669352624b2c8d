// Package retry repeats a failing remote call with capped exponential backoff.
//
// It is used while resolving key material: JWKS downloads and OpenID discovery
// are retried on transient failures so a briefly unavailable identity provider
// does not abort startup or a config reload.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// Jitter spreads delays by +/- this fraction.
	Jitter float64

	// Retryable decides whether err is worth another attempt.
	// If nil, Transient is used.
	Retryable func(error) bool
}

// NetworkConfig returns the configuration used for remote key fetches.
func NetworkConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Once returns a configuration that never retries.
func Once() Config {
	return Config{MaxAttempts: 1}
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. It returns the last error.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = Transient
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts || !retryable(lastErr) {
			return lastErr
		}

		timer := time.NewTimer(jitter(delay, cfg.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}

		delay = time.Duration(math.Min(float64(delay)*cfg.Multiplier, float64(cfg.MaxDelay)))
	}
}

// DoWithValue is Do for functions that produce a value.
func DoWithValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	spread := float64(d) * fraction
	return d + time.Duration(rand.Float64()*2*spread-spread)
}

// Transient reports whether err looks like a temporary remote failure:
// a network error, or an HTTP status of 429 or 5xx. Context cancellation and
// every other error are permanent.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var status interface{ HTTPStatus() int }
	if errors.As(err, &status) {
		code := status.HTTPStatus()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
