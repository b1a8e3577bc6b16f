package server

import (
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/playperu/partyquest/internal/treasure"
)

type AnswerRequest struct {
	AnswerID string `json:"answerId"`
}

func stopParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, ok := intParam(r, "stop")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stop")
	}
	return n, ok
}

func handleTreasure(logger *slog.Logger, svc *treasure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Progress(r.Context(), sessionFrom(r))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleTreasureAnswer(logger *slog.Logger, svc *treasure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop, ok := stopParam(w, r)
		if !ok {
			return
		}
		var req AnswerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := svc.Answer(r.Context(), sessionFrom(r), stop, req.AnswerID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleTreasureVerify(logger *slog.Logger, svc *treasure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop, ok := stopParam(w, r)
		if !ok {
			return
		}
		var p treasure.Proof
		if err := readJSON(r, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		v, err := svc.Verify(r.Context(), sessionFrom(r), stop, p)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleTreasureFound takes the proof as JSON, or as multipart form fields
// kind, lat, lng and code next to an optional "photo" file.
func handleTreasureFound(logger *slog.Logger, svc *treasure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop, ok := stopParam(w, r)
		if !ok {
			return
		}

		var (
			p     treasure.Proof
			photo []byte
		)
		mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mt == "multipart/form-data" {
			var err error
			if photo, err = readPhoto(w, r); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			p.Kind = treasure.ProofKind(r.FormValue("kind"))
			p.Lat, _ = strconv.ParseFloat(r.FormValue("lat"), 64)
			p.Lng, _ = strconv.ParseFloat(r.FormValue("lng"), 64)
			p.Code = r.FormValue("code")
		} else if err := readJSON(r, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := svc.Found(r.Context(), sessionFrom(r), stop, p, photo)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
