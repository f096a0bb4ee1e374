package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/studieo-app/studieo-api/internal/identity"
)

// AuthMiddleware resolves bearer tokens to principals
type AuthMiddleware struct {
	provider identity.Provider
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(provider identity.Provider) *AuthMiddleware {
	return &AuthMiddleware{provider: provider}
}

// Authenticate verifies the bearer token from the Authorization header
// and stores the resolved principal in the request context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing token", "provide Authorization header with Bearer token")
			return
		}

		user, err := m.provider.Resolve(r.Context(), token)
		if err != nil {
			slog.Error("failed to resolve token", "error", err)
			writeAuthError(w, http.StatusInternalServerError, "authentication error", "internal server error")
			return
		}

		if user == nil {
			slog.Warn("invalid token attempt", "remote_addr", r.RemoteAddr)
			writeAuthError(w, http.StatusUnauthorized, "invalid token", "the provided token is not valid")
			return
		}

		slog.Debug("authenticated request", "user", user.ID, "role", user.Role)

		ctx := ContextWithPrincipal(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts the token from the Authorization header.
// Falls back to the token query parameter for websocket clients, which
// cannot set headers.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	return r.URL.Query().Get("token")
}

// AuthError represents an authentication error response
type AuthError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeAuthError writes JSON error response
func writeAuthError(w http.ResponseWriter, status int, error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(AuthError{
		Error:   error,
		Message: message,
	})
}
