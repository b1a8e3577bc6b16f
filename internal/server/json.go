package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/partyquest/internal/photos"
	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/slots"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

var (
	notFound = []error{quest.ErrSessionNotFound, quest.ErrNotFound}
	conflict = []error{
		quest.ErrInsufficientFunds, quest.ErrAlreadyPurchased,
		quest.ErrTaskCompleted, quest.ErrTaskPending, quest.ErrTaskNotOpen, quest.ErrSkipUnavailable,
		quest.ErrStopLocked, quest.ErrAlreadyFound,
		slots.ErrNotStarted, slots.ErrNothingToGamble,
	}
	unprocessable = []error{
		quest.ErrInvalidPosition, quest.ErrInvalidAmount, quest.ErrUnknownItem,
		quest.ErrProofRejected, quest.ErrInvalidCommand,
		slots.ErrInvalidChoice, photos.ErrInvalidName,
	}
	unavailable = []error{quest.ErrOffline, quest.ErrSchemaDrift}
)

func statusOf(err error) int {
	is := func(targets []error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
	switch {
	case is(notFound):
		return http.StatusNotFound
	case is(conflict):
		return http.StatusConflict
	case is(unprocessable):
		return http.StatusUnprocessableEntity
	case is(unavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError maps a service error onto a status. Business rule
// failures go back to the caller as-is; only unexpected failures are logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	case http.StatusServiceUnavailable:
		logger.Warn("store unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

// intParam reads a numeric URL parameter.
func intParam(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	return v, err == nil
}
