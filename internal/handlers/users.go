package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// UserResponse represents a user's public profile.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Online    bool      `json:"online"`
	CreatedAt time.Time `json:"created_at"`
}

// Who handles GET /who/{id}: public profile plus live presence.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.db.GetUserByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		FullName:  sanitizeName(user.FullName),
		Bio:       user.Bio,
		Online:    h.online(r, user.ID.String()),
		CreatedAt: user.CreatedAt,
	})
}

// FindUsers handles GET /find?q=: username substring search.
func (h *Handler) FindUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < 2 {
		h.Error(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}

	users, err := h.db.SearchUsers(r.Context(), query, 20)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}

	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = UserResponse{
			ID:        u.ID.String(),
			Username:  u.Username,
			FullName:  sanitizeName(u.FullName),
			Bio:       u.Bio,
			Online:    h.online(r, u.ID.String()),
			CreatedAt: u.CreatedAt,
		}
	}

	h.JSON(w, http.StatusOK, out)
}

// online checks the in-process registry, then the Redis presence marker.
func (h *Handler) online(r *http.Request, userID string) bool {
	if h.registry != nil && h.registry.Online(userID) {
		return true
	}
	if h.redis != nil {
		on, err := h.redis.IsOnline(r.Context(), userID)
		return err == nil && on
	}
	return false
}
