package server

import (
	"errors"
	"net/http"

	"github.com/playperu/partyquest/internal/store"
)

var errNoAdminSession = errors.New("no valid admin session")

const adminCookieName = "admin_session"

// adminFromRequest reads the admin_session cookie and looks up the admin session.
func adminFromRequest(r *http.Request, admins AdminStore) (store.AdminSession, error) {
	cookie, err := r.Cookie(adminCookieName)
	if err != nil || cookie.Value == "" {
		return store.AdminSession{}, errNoAdminSession
	}
	sess, err := admins.AdminFromSession(r.Context(), cookie.Value)
	if err != nil {
		return store.AdminSession{}, errors.Join(errNoAdminSession, err)
	}
	return sess, nil
}
