package offline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/playperu/partyquest/internal/handler/health"
	"github.com/playperu/partyquest/internal/kv"
	"github.com/playperu/partyquest/internal/offline"
)

func newQueue(t *testing.T) (*offline.Queue, *kv.Store) {
	t.Helper()
	local, err := kv.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { local.Close() })
	return offline.New(local, slog.Default()), local
}

type payload struct {
	N int `json:"n"`
}

func TestFlushReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	q.MarkOffline()

	var order []int
	q.Register(offline.PointsUpdate, func(_ context.Context, raw json.RawMessage) error {
		var p payload
		json.Unmarshal(raw, &p)
		order = append(order, p.N)
		return nil
	})

	for i := 1; i <= 3; i++ {
		if _, err := q.Enqueue(ctx, offline.PointsUpdate, payload{N: i}); err != nil {
			t.Fatal(err)
		}
	}
	if len(order) != 0 {
		t.Fatalf("replayed while offline: %v", order)
	}

	res, err := q.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Replayed != 3 || res.Remaining != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestFlushKeepsFailures(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	q.MarkOffline()

	fail := true
	q.Register(offline.TaskCompletion, func(context.Context, json.RawMessage) error {
		if fail {
			return errors.New("still down")
		}
		return nil
	})
	q.Register(offline.PhotoUpload, func(context.Context, json.RawMessage) error { return nil })

	q.Enqueue(ctx, offline.TaskCompletion, payload{N: 1})
	q.Enqueue(ctx, offline.PhotoUpload, payload{N: 2})

	res, _ := q.Flush(ctx)
	if res.Replayed != 1 || res.Remaining != 1 {
		t.Fatalf("first flush = %+v", res)
	}
	pending, _ := q.Pending(ctx)
	if len(pending) != 1 || pending[0].Type != offline.TaskCompletion {
		t.Fatalf("pending = %+v", pending)
	}

	fail = false
	if res, _ := q.Flush(ctx); res.Replayed != 1 || res.Remaining != 0 {
		t.Errorf("second flush = %+v", res)
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	q, local := newQueue(t)
	q.MarkOffline()
	q.Enqueue(ctx, offline.TreasureFound, payload{N: 7})

	restarted := offline.New(local, slog.Default())
	st, err := restarted.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Pending != 1 || !st.Online || st.LastSync != nil {
		t.Errorf("status = %+v", st)
	}
}

func TestEnqueueFlushesWhenOnline(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	calls := 0
	q.Register(offline.PointsUpdate, func(context.Context, json.RawMessage) error {
		calls++
		return nil
	})
	q.Enqueue(ctx, offline.PointsUpdate, payload{N: 1})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	st, _ := q.Status(ctx)
	if st.Pending != 0 || st.LastSync == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestHoldMarksOffline(t *testing.T) {
	q, _ := newQueue(t)
	q.Register(offline.PhotoUpload, func(context.Context, json.RawMessage) error {
		t.Error("replayed while offline")
		return nil
	})
	if _, err := q.Hold(context.Background(), offline.PhotoUpload, payload{}); err != nil {
		t.Fatal(err)
	}
	if q.Online() {
		t.Error("queue still online after Hold")
	}
}

func TestMonitorFlushesOnReconnect(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	down := true
	checks := map[string]health.Checker{
		"store": health.CheckerFunc(func(context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		}),
	}
	m := offline.NewMonitor(q, checks, time.Second, time.Minute, slog.Default())

	replayed := 0
	q.Register(offline.TaskCompletion, func(context.Context, json.RawMessage) error {
		replayed++
		return nil
	})

	if m.Check(ctx) {
		t.Fatal("check reported online")
	}
	q.Enqueue(ctx, offline.TaskCompletion, payload{N: 1})
	if replayed != 0 {
		t.Fatal("replayed while offline")
	}

	down = false
	if !m.Check(ctx) {
		t.Fatal("check reported offline")
	}
	if replayed != 1 || !q.Online() {
		t.Errorf("replayed = %d, online = %v", replayed, q.Online())
	}

	m.Check(ctx)
	if replayed != 1 {
		t.Errorf("steady online check replayed again: %d", replayed)
	}
}

func TestReconnectFlushOutlivesCheckInterval(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	down := true
	checks := map[string]health.Checker{
		"store": health.CheckerFunc(func(context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		}),
	}
	interval := 20 * time.Millisecond
	m := offline.NewMonitor(q, checks, interval, time.Minute, slog.Default())

	replayed := 0
	q.Register(offline.TaskCompletion, func(ctx context.Context, _ json.RawMessage) error {
		select {
		case <-time.After(3 * interval):
		case <-ctx.Done():
			return ctx.Err()
		}
		replayed++
		return nil
	})

	m.Check(ctx)
	q.Enqueue(ctx, offline.TaskCompletion, payload{N: 1})
	q.Enqueue(ctx, offline.TaskCompletion, payload{N: 2})

	down = false
	if !m.Check(ctx) {
		t.Fatal("check reported offline")
	}
	if replayed != 2 {
		t.Errorf("replayed = %d, want 2", replayed)
	}
	if pending, _ := q.Pending(ctx); len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}
