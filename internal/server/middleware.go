package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/partyquest/internal/quest"
	"github.com/playperu/partyquest/internal/session"
	"github.com/playperu/partyquest/internal/store"
)

type ctxKey int

const (
	ctxKeySession ctxKey = iota
	ctxKeyAdmin
)

// sessionMiddleware performs the session handshake for {sessionID}: the
// session must exist, and the request counts as activity.
func sessionMiddleware(logger *slog.Logger, players PlayerStore, sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "sessionID")
			sess, err := players.Session(r.Context(), quest.SessionContext{ID: id})
			if err != nil {
				writeServiceError(w, r, logger, err)
				return
			}

			sc := quest.SessionContext{ID: sess.ID, UserName: sess.UserName}
			if r.Method != http.MethodGet {
				sessions.Touch(r.Context(), sc)
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminAuthMiddleware(admins AdminStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := adminFromRequest(r, admins)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyAdmin, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFrom(r *http.Request) quest.SessionContext {
	return r.Context().Value(ctxKeySession).(quest.SessionContext)
}

func adminFrom(r *http.Request) store.AdminSession {
	return r.Context().Value(ctxKeyAdmin).(store.AdminSession)
}
