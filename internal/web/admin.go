package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAdmin accepts the admin token as "Authorization: Bearer <token>" or
// as ?token=.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.opts.AdminToken == "" {
			writeAPIError(w, http.StatusForbidden, "admin_disabled", "admin endpoints disabled (no admin token)")
			return
		}
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if auth := r.Header.Get("Authorization"); token == "" && strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		if token == "" {
			writeAPIError(w, http.StatusUnauthorized, "missing_token", "missing admin token")
			return
		}
		if !tokensEqual(token, h.opts.AdminToken) {
			writeAPIError(w, http.StatusUnauthorized, "invalid_token", "invalid admin token")
			return
		}
		next(w, r)
	}
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
