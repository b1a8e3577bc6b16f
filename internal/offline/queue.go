// Package offline keeps the writes that could not reach the main store and
// replays them once it is reachable again.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"
)

// QueueKey is the local KV key holding the pending actions.
const QueueKey = "offlinePendingActions"

type ActionType string

const (
	PhotoUpload    ActionType = "photo_upload"
	TaskCompletion ActionType = "task_completion"
	PointsUpdate   ActionType = "points_update"
	TreasureFound  ActionType = "treasure_found"
)

type Action struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler replays one action against the main store.
type Handler func(ctx context.Context, payload json.RawMessage) error

type KV interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

type Status struct {
	Online   bool       `json:"online"`
	Pending  int        `json:"pending"`
	LastSync *time.Time `json:"lastSync,omitempty"`
}

type FlushResult struct {
	Replayed  int `json:"replayed"`
	Remaining int `json:"remaining"`
}

type Queue struct {
	kv     KV
	logger *slog.Logger

	mu       sync.Mutex // guards the stored list and lastSync
	lastSync time.Time

	hmu      sync.RWMutex
	handlers map[ActionType]Handler

	online atomic.Bool
	flight singleflight.Group
	now    func() time.Time
}

func New(kv KV, logger *slog.Logger) *Queue {
	q := &Queue{
		kv:       kv,
		logger:   logger,
		handlers: make(map[ActionType]Handler),
		now:      func() time.Time { return time.Now().UTC() },
	}
	q.online.Store(true)
	return q
}

// Register sets the replay handler for an action type.
func (q *Queue) Register(t ActionType, h Handler) {
	q.hmu.Lock()
	defer q.hmu.Unlock()
	q.handlers[t] = h
}

func (q *Queue) handler(t ActionType) (Handler, bool) {
	q.hmu.RLock()
	defer q.hmu.RUnlock()
	h, ok := q.handlers[t]
	return h, ok
}

func (q *Queue) Online() bool { return q.online.Load() }

// MarkOffline records that the main store just failed to answer.
func (q *Queue) MarkOffline() {
	if q.online.Swap(false) {
		q.logger.Warn("main store unreachable, queueing writes")
	}
}

// MarkOnline records a successful health check and reports whether this ends an
// offline period.
func (q *Queue) MarkOnline() bool {
	return !q.online.Swap(true)
}

func (q *Queue) load(ctx context.Context) ([]Action, error) {
	var actions []Action
	if _, err := q.kv.GetJSON(ctx, QueueKey, &actions); err != nil {
		return nil, fmt.Errorf("loading offline queue: %w", err)
	}
	return actions, nil
}

// Enqueue persists an action. When the store is considered reachable the
// queue is flushed right away.
func (q *Queue) Enqueue(ctx context.Context, t ActionType, payload any) (Action, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	a := Action{ID: ulid.Make().String(), Type: t, Payload: raw, Timestamp: q.now()}

	q.mu.Lock()
	actions, err := q.load(ctx)
	if err == nil {
		err = q.kv.SetJSON(ctx, QueueKey, append(actions, a))
	}
	q.mu.Unlock()
	if err != nil {
		return Action{}, fmt.Errorf("enqueueing %s: %w", t, err)
	}
	q.logger.Info("action queued", "id", a.ID, "type", t)

	if q.Online() {
		if _, err := q.Flush(ctx); err != nil {
			q.logger.Warn("flush after enqueue failed", "error", err)
		}
	}
	return a, nil
}

// Hold marks the store unreachable and queues the action. Callers use it
// right after a write failed with quest.ErrOffline.
func (q *Queue) Hold(ctx context.Context, t ActionType, payload any) (Action, error) {
	q.MarkOffline()
	return q.Enqueue(ctx, t, payload)
}

// Pending returns the queued actions in insertion order.
func (q *Queue) Pending(ctx context.Context) ([]Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Flush replays every queued action in insertion order. Replayed actions are
// removed; failed ones stay for the next flush. Concurrent calls share one
// run.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	v, err, _ := q.flight.Do("flush", func() (any, error) {
		return q.flush(ctx)
	})
	if err != nil {
		return FlushResult{}, err
	}
	return v.(FlushResult), nil
}

func (q *Queue) flush(ctx context.Context) (FlushResult, error) {
	actions, err := q.Pending(ctx)
	if err != nil {
		return FlushResult{}, err
	}

	done := make(map[string]bool, len(actions))
	for _, a := range actions {
		h, ok := q.handler(a.Type)
		if !ok {
			q.logger.Warn("no handler for queued action", "id", a.ID, "type", a.Type)
			continue
		}
		if err := h(ctx, a.Payload); err != nil {
			q.logger.Warn("replay failed", "id", a.ID, "type", a.Type, "error", err)
			continue
		}
		done[a.ID] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Actions enqueued during the replay are kept.
	current, err := q.load(ctx)
	if err != nil {
		return FlushResult{}, err
	}
	remaining := make([]Action, 0, len(current))
	for _, a := range current {
		if !done[a.ID] {
			remaining = append(remaining, a)
		}
	}
	if len(done) > 0 {
		if err := q.kv.SetJSON(ctx, QueueKey, remaining); err != nil {
			return FlushResult{}, fmt.Errorf("saving offline queue: %w", err)
		}
	}
	if len(done) > 0 || len(remaining) == 0 {
		q.lastSync = q.now()
	}
	if len(done) > 0 {
		q.logger.Info("offline queue flushed", "replayed", len(done), "remaining", len(remaining))
	}
	return FlushResult{Replayed: len(done), Remaining: len(remaining)}, nil
}

func (q *Queue) Status(ctx context.Context) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions, err := q.load(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Online: q.Online(), Pending: len(actions)}
	if !q.lastSync.IsZero() {
		t := q.lastSync
		st.LastSync = &t
	}
	return st, nil
}
