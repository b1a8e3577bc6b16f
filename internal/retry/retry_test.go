package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/playperu/partyquest/internal/quest"
)

func fastPolicy(retries uint64) Policy {
	return Policy{MaxRetries: retries, Base: time.Millisecond, Cap: 5 * time.Millisecond}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("write: %w", quest.ErrOffline)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return quest.ErrOffline
	})
	if !errors.Is(err, quest.ErrOffline) {
		t.Fatalf("err = %v, want ErrOffline", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 1 + 2 retries", calls)
	}
}

func TestDoPermanentNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return quest.ErrInsufficientFunds
	})
	if !errors.Is(err, quest.ErrInsufficientFunds) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestAttemptTimeout(t *testing.T) {
	p := fastPolicy(1).WithTimeout(10 * time.Millisecond)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestValue(t *testing.T) {
	n, err := Value(context.Background(), fastPolicy(1), func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || n != 42 {
		t.Errorf("Value = %d, %v", n, err)
	}
}
