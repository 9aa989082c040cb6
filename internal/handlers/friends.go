package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Kalyan-pallati/chat-app/internal/api/middleware"
	"github.com/Kalyan-pallati/chat-app/internal/metrics"
	"github.com/Kalyan-pallati/chat-app/internal/models"
)

// SendFriendRequest handles POST /friends/request/{username}.
func (h *Handler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	username := chi.URLParam(r, "username")
	if username == user.Username {
		h.Error(w, http.StatusBadRequest, "cannot send a friend request to yourself")
		return
	}

	target, err := h.db.GetUserByUsername(r.Context(), username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if target == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	existing, err := h.db.GetFriendRequestBetween(r.Context(), user.ID, target.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		if existing.Status == models.FriendAccepted {
			h.Error(w, http.StatusBadRequest, "already friends")
			return
		}
		h.Error(w, http.StatusBadRequest, "friend request already pending")
		return
	}

	if _, err := h.db.CreateFriendRequest(r.Context(), user.ID, target.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create friend request")
		return
	}
	metrics.FriendRequestsSent.Inc()

	h.JSON(w, http.StatusCreated, map[string]string{"message": "friend request sent"})
}

// PendingRequests handles GET /friends/requests/pending.
func (h *Handler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	reqs, err := h.db.PendingFriendRequests(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch requests")
		return
	}
	if reqs == nil {
		reqs = []models.PendingFriendRequest{}
	}

	h.JSON(w, http.StatusOK, reqs)
}

// AcceptFriendRequest handles POST /friends/accept/{id}.
func (h *Handler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, true)
}

// RejectFriendRequest handles POST /friends/reject/{id}. Rejection removes
// the request entirely so it can be re-sent later.
func (h *Handler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveRequest(w, r, false)
}

func (h *Handler) resolveRequest(w http.ResponseWriter, r *http.Request, accept bool) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request ID format")
		return
	}

	req, err := h.db.GetFriendRequest(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if req == nil {
		h.Error(w, http.StatusNotFound, "request not found")
		return
	}
	if req.Recipient != user.ID {
		h.Error(w, http.StatusForbidden, "this request is not addressed to you")
		return
	}

	if accept {
		if err := h.db.AcceptFriendRequest(r.Context(), id); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to accept request")
			return
		}
		h.JSON(w, http.StatusOK, map[string]string{"message": "friend request accepted"})
		return
	}

	if err := h.db.DeleteFriendRequest(r.Context(), id); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to reject request")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "friend request rejected"})
}

// ListFriends handles GET /friends: accepted friends with last-message
// preview and unread counts, most recently active first.
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	friends, err := h.db.ListFriends(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch friends")
		return
	}
	if friends == nil {
		friends = []models.FriendSummary{}
	}

	if h.redis != nil {
		for i := range friends {
			n, err := h.redis.GetUnread(r.Context(), user.ID.String(), friends[i].ID.String())
			if err == nil {
				friends[i].Unread = n
			}
		}
	}

	h.JSON(w, http.StatusOK, friends)
}
