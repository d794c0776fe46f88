package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth guards operator endpoints with a static bearer token whose
// bcrypt hash is configured on the server.
type AdminAuth struct {
	hash   []byte
	logger zerolog.Logger
}

// NewAdminAuth creates the admin auth middleware. An empty hash disables
// every guarded route.
func NewAdminAuth(tokenHash string, logger zerolog.Logger) *AdminAuth {
	return &AdminAuth{hash: []byte(tokenHash), logger: logger}
}

// Enabled reports whether a token hash is configured.
func (m *AdminAuth) Enabled() bool {
	return len(m.hash) > 0
}

// RequireToken rejects requests without a valid bearer token. Without a
// configured hash the routes behave as if they did not exist.
func (m *AdminAuth) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			jsonError(w, http.StatusNotFound, "not found")
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if err := bcrypt.CompareHashAndPassword(m.hash, []byte(token)); err != nil {
			m.logger.Warn().
				Str("type", "security").
				Str("event", "admin_auth_failed").
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("invalid admin token")
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
