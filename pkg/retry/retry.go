// Package retry provides the retry policy applied to all upstream
// calls: model invocations, page fetches and vector upserts.
package retry

import (
	"context"
	"time"
)

// Policy retries an operation a fixed number of times with a growing
// delay between attempts. A nil Retryable predicate retries every
// error.
type Policy struct {
	Attempts  int
	Delay     time.Duration
	Retryable func(error) bool
}

// Default mirrors the upstream-call policy used across the system:
// 3 attempts with a linearly increasing delay.
var Default = Policy{Attempts: 3, Delay: time.Second}

// Do runs fn until it succeeds, the attempts are exhausted, or the
// context is done. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay * time.Duration(i+1)):
		}
	}
	return err
}

// Do1 is Do for operations returning a value.
func Do1[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
