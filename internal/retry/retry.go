// Package retry runs operations under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy defines how retries should be handled.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy allows one retry of a transient failure after a short pause.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     1,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// retryable is implemented by error types that classify themselves.
type retryable interface {
	Retryable() bool
}

// delayed is implemented by errors that carry a server-requested wait, such
// as a Retry-After header.
type delayed interface {
	RetryDelay() time.Duration
}

// IsRetryable checks if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var self retryable
	if errors.As(err, &self) {
		return self.Retryable()
	}
	return false
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. It returns the number of attempts made.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) (int, error) {
	delays := newBackOff(policy)
	attempts := 0

	for {
		attempts++
		err := fn(ctx)
		if err == nil {
			return attempts, nil
		}

		if !IsRetryable(err) {
			return attempts, err
		}

		if attempts > policy.MaxRetries {
			return attempts, fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, err)
		}

		wait := delays.NextBackOff()
		if wait == backoff.Stop {
			return attempts, err
		}

		var hint delayed
		if errors.As(err, &hint) {
			if d := hint.RetryDelay(); d > 0 {
				wait = d
				if policy.MaxBackoff > 0 && wait > policy.MaxBackoff {
					wait = policy.MaxBackoff
				}
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}
}

func newBackOff(policy Policy) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: policy.InitialBackoff,
		Multiplier:      policy.BackoffFactor,
		MaxInterval:     policy.MaxBackoff,
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	if policy.Jitter {
		b.RandomizationFactor = 0.1
	}
	b.Reset()
	return b
}
