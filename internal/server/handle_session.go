package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/session"
	"github.com/playperu/partyquest/internal/workflow"
)

// InitSessionRequest is the request body for POST /api/sessions. An empty
// SessionID mints a new one.
type InitSessionRequest struct {
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
}

// ResolveResponse names the session a device plays.
type ResolveResponse struct {
	SessionID string `json:"sessionId"`
}

// CommandRequest carries a live channel message a device received.
type CommandRequest struct {
	Message string `json:"message"`
}

type OnboardingResponse struct {
	Seen bool `json:"seen"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

func handleInitSession(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InitSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.UserName = strings.TrimSpace(req.UserName)
		if req.UserName == "" {
			writeError(w, http.StatusBadRequest, "userName is required")
			return
		}
		if req.SessionID == "" {
			id, err := session.NewID()
			if err != nil {
				writeServiceError(w, r, logger, err)
				return
			}
			req.SessionID = id
		}

		sess, err := sessions.Initialize(r.Context(), quest.SessionContext{ID: req.SessionID, UserName: req.UserName})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleResolveSession(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := r.URL.Query().Get("device")
		if device == "" {
			writeError(w, http.StatusBadRequest, "device query parameter required")
			return
		}
		id, err := sessions.Resolve(r.Context(), device, r.URL.Query().Get("session"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ResolveResponse{SessionID: id})
	}
}

func handleForgetSession(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.Forget(r.Context(), chi.URLParam(r, "device")); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func handleOnboarding(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := chi.URLParam(r, "device")
		if r.Method == http.MethodPost {
			if err := sessions.MarkOnboardingSeen(r.Context(), device); err != nil {
				writeServiceError(w, r, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, OnboardingResponse{Seen: true})
			return
		}
		seen, err := sessions.OnboardingSeen(r.Context(), device)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OnboardingResponse{Seen: seen})
	}
}

func handleApplyCommand(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CommandRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		cmd, ok := quest.ParseCommand(req.Message)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "message is not a command")
			return
		}
		d, err := sessions.ApplyCommand(r.Context(), chi.URLParam(r, "device"), cmd)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleState(logger *slog.Logger, wf *workflow.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := wf.RecomputeState(r.Context(), sessionFrom(r))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleHistory(logger *slog.Logger, players PlayerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		entries, err := players.History(r.Context(), sessionFrom(r), limit)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// handleMessages returns live channel messages newer than ?since (RFC 3339).
func handleMessages(logger *slog.Logger, players PlayerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since time.Time
		if v := r.URL.Query().Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "since must be RFC 3339")
				return
			}
			since = t
		}
		msgs, err := players.Messages(r.Context(), sessionFrom(r).ID, since)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// handleSessionQR renders the join link of a session, so a second device
// can pick up the same game.
func handleSessionQR(logger *slog.Logger, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link := strings.TrimSuffix(baseURL, "/") + "/?session=" + sessionFrom(r).ID
		png, err := qrcode.Encode(link, qrcode.Medium, 256)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}
