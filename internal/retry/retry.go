// Package retry runs network operations with per-attempt timeouts and capped
// exponential backoff with jitter.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/playperu/partyquest/internal/database"
	"github.com/playperu/partyquest/internal/quest"
)

type Policy struct {
	MaxRetries uint64
	Base       time.Duration
	Cap        time.Duration
	Timeout    time.Duration // per attempt; zero means no timeout
}

// Default is 5 retries from 500 ms up to 8 s with a 10 s attempt timeout.
func Default() Policy {
	return Policy{MaxRetries: 5, Base: 500 * time.Millisecond, Cap: 8 * time.Second, Timeout: 10 * time.Second}
}

// WithTimeout returns a copy of p with a different attempt timeout.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.Timeout = d
	return p
}

func (p Policy) backoff() goretry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Millisecond
	}
	b := goretry.NewExponential(base)
	b = goretry.WithJitterPercent(50, b)
	if p.Cap > 0 {
		b = goretry.WithCappedDuration(p.Cap, b)
	}
	return goretry.WithMaxRetries(p.MaxRetries, b)
}

// Do calls fn until it succeeds, returns a permanent error or the retries
// run out. Only transient errors are retried.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := attempt(ctx, p.Timeout, fn)
		if err != nil && Transient(err) && ctx.Err() == nil {
			return goretry.RetryableError(err)
		}
		return err
	})
}

// Value is Do for functions that return a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// Transient reports whether err is worth retrying: the store was unreachable
// or the attempt timed out.
func Transient(err error) bool {
	return errors.Is(err, quest.ErrOffline) || database.IsConnectivity(err)
}
