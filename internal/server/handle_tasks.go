package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/workflow"
)

const maxPhotoBytes = 16 << 20

// PendingResponse describes the task in flight after open or cancel.
type PendingResponse struct {
	Position *int           `json:"position,omitempty"`
	State    workflow.State `json:"state,omitempty"`
}

func position(w http.ResponseWriter, r *http.Request) (int, bool) {
	pos, ok := intParam(r, "position")
	if !ok || !quest.ValidPosition(pos) {
		writeError(w, http.StatusUnprocessableEntity, quest.ErrInvalidPosition.Error())
		return 0, false
	}
	return pos, true
}

func pendingOf(wf *workflow.Service, sessionID string) PendingResponse {
	pos, state, ok := wf.Pending(sessionID)
	if !ok {
		return PendingResponse{}
	}
	return PendingResponse{Position: &pos, State: state}
}

func handleOpenTask(logger *slog.Logger, wf *workflow.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := position(w, r)
		if !ok {
			return
		}
		sc := sessionFrom(r)
		if err := wf.Open(r.Context(), sc, pos); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, pendingOf(wf, sc.ID))
	}
}

func handleCancelTask(logger *slog.Logger, wf *workflow.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc := sessionFrom(r)
		if err := wf.Cancel(sc); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, pendingOf(wf, sc.ID))
	}
}

// handleCompleteTask accepts a multipart form with an optional "photo" file,
// or any other body for a completion without photo.
func handleCompleteTask(logger *slog.Logger, wf *workflow.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := position(w, r)
		if !ok {
			return
		}
		photo, err := readPhoto(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err := wf.Complete(r.Context(), sessionFrom(r), pos, photo)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		status := http.StatusOK
		if res.Sync == quest.SyncPending {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)
	}
}

func handleSkipTask(logger *slog.Logger, wf *workflow.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := position(w, r)
		if !ok {
			return
		}
		res, err := wf.Skip(r.Context(), sessionFrom(r), pos)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		status := http.StatusOK
		if res.Sync == quest.SyncPending {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)
	}
}

// readPhoto returns the "photo" part of a multipart body, or nil when the
// request carries none.
func readPhoto(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	f, _, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
