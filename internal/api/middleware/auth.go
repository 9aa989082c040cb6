package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Kalyan-pallati/chat-app/internal/auth"
	"github.com/Kalyan-pallati/chat-app/internal/models"
	"github.com/Kalyan-pallati/chat-app/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// AuthMiddleware handles bearer-token verification for authenticated endpoints.
type AuthMiddleware struct {
	db       store.DataStore
	verifier auth.TokenVerifier
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(db store.DataStore, verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{db: db, verifier: verifier}
}

// RequireAuth verifies the Authorization bearer token and loads the user into
// the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userIDStr, err := m.verifier.Verify(token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token subject")
			return
		}

		user, err := m.db.GetUserByID(r.Context(), userID)
		if err != nil || user == nil {
			jsonError(w, http.StatusUnauthorized, "user not found")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
