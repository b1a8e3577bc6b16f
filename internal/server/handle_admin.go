package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/partyquest/internal/admin"
	"github.com/playperu/partyquest/internal/quest"
)

type BalanceRequest struct {
	Balance int `json:"balance"`
}

// AdminCommandRequest addresses one session, or all when SessionID is empty.
type AdminCommandRequest struct {
	SessionID string            `json:"sessionId,omitempty"`
	Kind      quest.CommandKind `json:"kind"`
	Path      string            `json:"path,omitempty"`
}

type AnnounceRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
}

type DeletedResponse struct {
	Deleted int `json:"deleted"`
}

func handleOverview(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sums, err := console.Overview(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sums)
	}
}

func handleAdminSession(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := console.Session(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// handleAdminAction runs a reset on {sessionID}, or on every session when
// the route has no such parameter.
func handleAdminAction(logger *slog.Logger, name string, op func(ctx context.Context, sessionID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if err := op(r.Context(), sessionID); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		logger.Info("admin action", "action", name, "session_id", sessionID, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func handleAdminReopenTask(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := position(w, r)
		if !ok {
			return
		}
		if err := console.ReopenTask(r.Context(), chi.URLParam(r, "sessionID"), pos); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func handleAdminResetStop(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop, ok := stopParam(w, r)
		if !ok {
			return
		}
		if err := console.ResetTreasureStop(r.Context(), chi.URLParam(r, "sessionID"), stop); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func handleAdminSetBalance(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BalanceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := console.SetBalance(r.Context(), chi.URLParam(r, "sessionID"), req.Balance); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func handleAdminDeleteAll(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := console.DeleteAll(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		logger.Info("admin action", "action", "delete_all", "deleted", n, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusOK, DeletedResponse{Deleted: n})
	}
}

func handleAdminCommand(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminCommandRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		cmd := quest.Command{Kind: quest.CommandKind(strings.ToUpper(string(req.Kind))), Path: req.Path}
		msg, err := console.SendCommand(r.Context(), req.SessionID, cmd)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleAdminAnnounce(logger *slog.Logger, console *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnnounceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		msg, err := console.Announce(r.Context(), req.SessionID, req.Text)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}
