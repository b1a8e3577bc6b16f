package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/playperu/partyquest/internal/ledger"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
	"github.com/playperu/partyquest/internal/store"
	"github.com/playperu/partyquest/internal/store/storetest"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, Base: time.Millisecond, Cap: 2 * time.Millisecond}
}

func setup(t *testing.T) (*ledger.Ledger, *store.Store, quest.SessionContext) {
	t.Helper()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "s1")
	return ledger.New(s, fastPolicy(), slog.Default()), s, sc
}

func complete(t *testing.T, s *store.Store, sc quest.SessionContext, positions ...int) {
	t.Helper()
	for _, pos := range positions {
		if _, err := s.CompleteTask(context.Background(), sc, pos, "", time.Now()); err != nil {
			t.Fatalf("complete %d: %v", pos, err)
		}
	}
}

func TestGetCurrentPointsRecomputesUnsetBalance(t *testing.T) {
	ctx := context.Background()
	l, s, sc := setup(t)
	complete(t, s, sc, 0, 1, 2)

	got, err := l.GetCurrentPoints(ctx, sc)
	if err != nil {
		t.Fatal(err)
	}
	if want := quest.EvaluateTasks(mustTasks(t, s, sc)).TotalEarned; got != want {
		t.Errorf("points = %d, want %d", got, want)
	}
	if bal, _ := s.Balance(ctx, sc); bal != nil {
		t.Errorf("fallback wrote balance %d", *bal)
	}
}

func mustTasks(t *testing.T, s *store.Store, sc quest.SessionContext) []quest.BingoTask {
	t.Helper()
	tasks, err := s.Tasks(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	return tasks
}

func TestAddAndSubtract(t *testing.T) {
	ctx := context.Background()
	l, _, sc := setup(t)

	if got, err := l.AddPoints(ctx, sc, 100); err != nil || got != 100 {
		t.Fatalf("AddPoints = %d, %v", got, err)
	}
	if got, err := l.SubtractPoints(ctx, sc, 30); err != nil || got != 70 {
		t.Fatalf("SubtractPoints = %d, %v", got, err)
	}

	_, err := l.SubtractPoints(ctx, sc, 71)
	if !errors.Is(err, quest.ErrInsufficientFunds) {
		t.Fatalf("overdraw err = %v", err)
	}
	if got, _ := l.GetCurrentPoints(ctx, sc); got != 70 {
		t.Errorf("balance after rejected debit = %d, want 70", got)
	}

	if _, err := l.SubtractPoints(ctx, sc, -1); !errors.Is(err, quest.ErrInvalidAmount) {
		t.Errorf("negative debit err = %v", err)
	}
}

func TestAddPointsClampsAtZero(t *testing.T) {
	ctx := context.Background()
	l, _, sc := setup(t)
	l.SetPoints(ctx, sc, 10)

	if got, err := l.AddPoints(ctx, sc, -50); err != nil || got != 0 {
		t.Errorf("AddPoints(-50) = %d, %v", got, err)
	}
}

func TestAddPointsStartsFromRecomputedTotal(t *testing.T) {
	ctx := context.Background()
	l, s, sc := setup(t)
	complete(t, s, sc, 0)

	got, err := l.AddPoints(ctx, sc, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got != quest.PointValue+5 {
		t.Errorf("balance = %d, want %d", got, quest.PointValue+5)
	}
}

func TestSetAndResetPoints(t *testing.T) {
	ctx := context.Background()
	l, _, sc := setup(t)

	l.SetPoints(ctx, sc, -5)
	if got, _ := l.GetCurrentPoints(ctx, sc); got != 0 {
		t.Errorf("SetPoints(-5) stored %d", got)
	}
	l.SetPoints(ctx, sc, 42)
	l.ResetPoints(ctx, sc)
	if got, _ := l.GetCurrentPoints(ctx, sc); got != 0 {
		t.Errorf("after reset = %d", got)
	}
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	l, _, sc := setup(t)
	l.SetPoints(ctx, sc, 0)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AddPoints(ctx, sc, 5); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got, _ := l.GetCurrentPoints(ctx, sc); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
}

func TestUnknownSession(t *testing.T) {
	l, _, _ := setup(t)
	_, err := l.GetCurrentPoints(context.Background(), quest.SessionContext{ID: "ghost"})
	if !errors.Is(err, quest.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

type driftStore struct{ ledger.Store }

func (driftStore) Balance(context.Context, quest.SessionContext) (*int, error) {
	return nil, quest.ErrSchemaDrift
}

func TestSchemaDriftFallsBack(t *testing.T) {
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "s1")
	complete(t, s, sc, 3, 4)

	l := ledger.New(driftStore{s}, fastPolicy(), slog.Default())
	got, err := l.GetCurrentPoints(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2*quest.PointValue {
		t.Errorf("points = %d, want %d", got, 2*quest.PointValue)
	}
}

// lostAckStore commits the first balance write and then reports the store
// unreachable, as a timeout after commit would.
type lostAckStore struct {
	*store.Store
	dropped bool
}

func (s *lostAckStore) AdjustBalance(ctx context.Context, sc quest.SessionContext, opID string, delta int) (int, error) {
	n, err := s.Store.AdjustBalance(ctx, sc, opID, delta)
	if err == nil && !s.dropped {
		s.dropped = true
		return 0, fmt.Errorf("%w: %w", quest.ErrOffline, context.DeadlineExceeded)
	}
	return n, err
}

func TestAddPointsRetryAfterLostAckAppliesOnce(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t, nil)
	sc := storetest.Session(t, s, "s1")
	if err := s.SetBalance(ctx, sc, 100); err != nil {
		t.Fatal(err)
	}

	fake := &lostAckStore{Store: s}
	l := ledger.New(fake, fastPolicy(), slog.Default())
	got, err := l.AddPoints(ctx, sc, 35)
	if err != nil {
		t.Fatal(err)
	}
	if !fake.dropped {
		t.Fatal("first write was not dropped")
	}
	if got != 135 {
		t.Errorf("returned balance = %d, want 135", got)
	}
	if got, _ := l.GetCurrentPoints(ctx, sc); got != 135 {
		t.Errorf("stored balance = %d, want 135", got)
	}
}
