// Package health reports whether the stores the game depends on are
// reachable. The same checkers drive the /healthz endpoint and the offline
// monitor.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a ping function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// Run checks every dependency and returns the failures by name.
func Run(ctx context.Context, checks map[string]Checker) map[string]error {
	failed := make(map[string]error)
	for name, c := range checks {
		if err := c.Check(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

type Handler struct {
	checks map[string]Checker
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, checks map[string]Checker) *Handler {
	return &Handler{checks: checks, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.check)
	return r
}

type result struct {
	Status string `json:"status"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := Run(ctx, h.checks)
	results := make(map[string]result, len(h.checks))
	for name := range h.checks {
		if err, ok := failed[name]; ok {
			h.logger.Error("health check failed", "name", name, "error", err)
			results[name] = result{Status: "error"}
			continue
		}
		results[name] = result{Status: "ok"}
	}

	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(results)
}
