package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RequireAdmin enforces the operator bearer token on /admin and relay
// registration routes. The configured value is a bcrypt hash so the secret
// never sits in the environment in the clear.
//
// An empty hash disables admin routes entirely rather than leaving them
// open.
func RequireAdmin(adminTokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminTokenHash == "" {
				forbidden(w)
				return
			}

			token := r.Header.Get("X-Admin-Token")
			if token == "" {
				if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					token = after
				}
			}
			if token == "" {
				forbidden(w)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(adminTokenHash), []byte(token)); err != nil {
				logger.WarnContext(r.Context(), "admin token rejected",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
				)
				forbidden(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden"}`))
}
