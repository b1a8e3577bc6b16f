// Package ledger owns the points balance of a session. Every earning and
// spending surface goes through it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/retry"
)

type Store interface {
	Balance(ctx context.Context, sc quest.SessionContext) (*int, error)
	Tasks(ctx context.Context, sc quest.SessionContext) ([]quest.BingoTask, error)
	SetBalance(ctx context.Context, sc quest.SessionContext, v int) error
	// AdjustBalance and DebitBalance apply a change at most once per opID.
	AdjustBalance(ctx context.Context, sc quest.SessionContext, opID string, delta int) (int, error)
	DebitBalance(ctx context.Context, sc quest.SessionContext, opID string, amount int) (int, error)
}

type Ledger struct {
	store  Store
	policy retry.Policy
	logger *slog.Logger
}

func New(store Store, policy retry.Policy, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, policy: policy, logger: logger}
}

// GetCurrentPoints returns the stored balance. An unset balance, or a store
// without the balance column, yields the total earned from the current tasks.
// The fallback is never written back.
func (l *Ledger) GetCurrentPoints(ctx context.Context, sc quest.SessionContext) (int, error) {
	bal, err := retry.Value(ctx, l.policy, func(ctx context.Context) (*int, error) {
		return l.store.Balance(ctx, sc)
	})
	switch {
	case errors.Is(err, quest.ErrSchemaDrift):
		l.logger.Warn("balance column missing, computing from tasks", "session_id", sc.ID, "error", err)
		return l.recompute(ctx, sc)
	case err != nil:
		return 0, err
	case bal == nil:
		return l.recompute(ctx, sc)
	}
	return *bal, nil
}

func (l *Ledger) recompute(ctx context.Context, sc quest.SessionContext) (int, error) {
	tasks, err := retry.Value(ctx, l.policy, func(ctx context.Context) ([]quest.BingoTask, error) {
		return l.store.Tasks(ctx, sc)
	})
	if err != nil {
		return 0, fmt.Errorf("recomputing balance: %w", err)
	}
	return quest.EvaluateTasks(tasks).TotalEarned, nil
}

// InitializeBalance writes the recomputed total when the balance is unset and
// returns the balance.
func (l *Ledger) InitializeBalance(ctx context.Context, sc quest.SessionContext) (int, error) {
	bal, err := retry.Value(ctx, l.policy, func(ctx context.Context) (*int, error) {
		return l.store.Balance(ctx, sc)
	})
	if err != nil {
		return 0, err
	}
	if bal != nil {
		return *bal, nil
	}

	total, err := l.recompute(ctx, sc)
	if err != nil {
		return 0, err
	}
	if err := l.write(ctx, sc, total); err != nil {
		return 0, err
	}
	l.logger.Info("balance initialized", "session_id", sc.ID, "balance", total)
	return total, nil
}

// AddPoints adds amount to the balance, clamping at 0, and returns the new
// balance. Every retry of the write carries the same operation ID, so an
// attempt that committed but timed out is not applied again.
func (l *Ledger) AddPoints(ctx context.Context, sc quest.SessionContext, amount int) (int, error) {
	if _, err := l.InitializeBalance(ctx, sc); err != nil {
		return 0, err
	}
	op := ulid.Make().String()
	return retry.Value(ctx, l.policy, func(ctx context.Context) (int, error) {
		return l.store.AdjustBalance(ctx, sc, op, amount)
	})
}

// SubtractPoints debits amount when the balance covers it. Otherwise it
// returns quest.ErrInsufficientFunds and the balance is unchanged.
func (l *Ledger) SubtractPoints(ctx context.Context, sc quest.SessionContext, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: %d", quest.ErrInvalidAmount, amount)
	}
	if _, err := l.InitializeBalance(ctx, sc); err != nil {
		return 0, err
	}
	op := ulid.Make().String()
	return retry.Value(ctx, l.policy, func(ctx context.Context) (int, error) {
		return l.store.DebitBalance(ctx, sc, op, amount)
	})
}

// SetPoints overwrites the balance. Last write wins.
func (l *Ledger) SetPoints(ctx context.Context, sc quest.SessionContext, amount int) error {
	return l.write(ctx, sc, max(0, amount))
}

func (l *Ledger) ResetPoints(ctx context.Context, sc quest.SessionContext) error {
	return l.write(ctx, sc, 0)
}

func (l *Ledger) write(ctx context.Context, sc quest.SessionContext, v int) error {
	return retry.Do(ctx, l.policy, func(ctx context.Context) error {
		return l.store.SetBalance(ctx, sc, v)
	})
}
