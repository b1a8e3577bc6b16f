package offline

import (
	"context"
	"log/slog"
	"time"

	"github.com/playperu/partyquest/internal/handler/health"
)

// Monitor checks the main store and flushes the queue every time it becomes
// reachable again.
type Monitor struct {
	queue    *Queue
	checks   map[string]health.Checker
	interval time.Duration
	flush    time.Duration
	logger   *slog.Logger
}

// NewMonitor checks every interval. Health checks are bounded by interval,
// a flush after reconnecting by flushTimeout.
func NewMonitor(q *Queue, checks map[string]health.Checker, interval, flushTimeout time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{queue: q, checks: checks, interval: interval, flush: flushTimeout, logger: logger}
}

// Run checks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	// Actions left over from a previous run are replayed once at start.
	if m.Check(ctx) {
		m.flushQueue(ctx, "startup flush failed")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Check(ctx)
		}
	}
}

// Check runs the health checks once, reacts to a state change and reports
// whether the store is reachable.
func (m *Monitor) Check(ctx context.Context) bool {
	if !m.healthy(ctx) {
		m.queue.MarkOffline()
		return false
	}
	if !m.queue.MarkOnline() {
		return true
	}

	m.logger.Info("main store reachable again, flushing queue")
	m.flushQueue(ctx, "flush on reconnect failed")
	return true
}

func (m *Monitor) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	failed := health.Run(ctx, m.checks)
	for name, err := range failed {
		m.logger.Debug("health check failed", "name", name, "error", err)
	}
	return len(failed) == 0
}

func (m *Monitor) flushQueue(ctx context.Context, msg string) {
	ctx, cancel := context.WithTimeout(ctx, m.flush)
	defer cancel()

	if _, err := m.queue.Flush(ctx); err != nil {
		m.logger.Warn(msg, "error", err)
	}
}
