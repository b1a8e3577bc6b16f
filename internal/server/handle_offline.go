package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/partyquest/internal/offline"
)

func handleOfflineStatus(logger *slog.Logger, q *offline.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := q.Status(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// handleOfflineFlush replays the queue on demand, the manual sync button.
func handleOfflineFlush(logger *slog.Logger, q *offline.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := q.Flush(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
