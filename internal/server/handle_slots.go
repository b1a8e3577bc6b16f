package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/slots"
)

type GambleRequest struct {
	Choice slots.Coin `json:"choice"`
}

// handleSlots adapts a slot machine operation that needs nothing but the
// session.
func handleSlots[T any](logger *slog.Logger, op func(context.Context, quest.SessionContext) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := op(r.Context(), sessionFrom(r))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSlotsSpin(logger *slog.Logger, svc *slots.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Spin(r.Context(), sessionFrom(r))
		if errors.Is(err, quest.ErrInsufficientFunds) {
			writeJSON(w, http.StatusConflict, SpinErrorResponse{Error: err.Error(), State: res.State})
			return
		}
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// SpinErrorResponse is returned when the machine is out of credits.
type SpinErrorResponse struct {
	Error string      `json:"error"`
	State slots.State `json:"state"`
}

func handleSlotsGamble(logger *slog.Logger, svc *slots.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GambleRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := svc.Gamble(r.Context(), sessionFrom(r), req.Choice)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
