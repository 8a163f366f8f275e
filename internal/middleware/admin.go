package middleware

import (
	"net/http"

	"github.com/podpairer/server/internal/audit"
	"github.com/podpairer/server/internal/util"
)

const AdminTokenHeader = "X-Admin-Token"

type AdminMiddleware struct {
	token string
}

// NewAdminMiddleware guards operator routes. An empty token disables them.
func NewAdminMiddleware(token string) *AdminMiddleware {
	return &AdminMiddleware{token: token}
}

func (m *AdminMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}

		provided := r.Header.Get(AdminTokenHeader)
		if provided == "" || !util.ConstantTimeEqual(provided, m.token) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminDenied})
			writeError(w, http.StatusUnauthorized, "Invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
