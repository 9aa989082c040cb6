package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Kalyan-pallati/chat-app/internal/api/middleware"
)

// HistoryMessage represents one message in the history response.
type HistoryMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// History handles GET /history/{friendID}: the full conversation between the
// caller and a friend, ascending by timestamp. Fetching history marks the
// conversation read for the caller.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	friendID, err := uuid.Parse(chi.URLParam(r, "friendID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid friend ID format")
		return
	}

	messages, err := h.db.History(r.Context(), user.ID.String(), friendID.String())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}

	// Reading the conversation clears the unread state. Best-effort; the
	// response does not depend on it.
	if err := h.db.MarkConversationRead(r.Context(), user.ID.String(), friendID.String()); err == nil && h.redis != nil {
		_ = h.redis.ResetUnread(r.Context(), user.ID.String(), friendID.String())
	}

	out := make([]HistoryMessage, len(messages))
	for i, m := range messages {
		out[i] = HistoryMessage{
			ID:        m.ID,
			Sender:    m.Sender,
			Recipient: m.Recipient,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Read:      m.Read,
		}
	}

	h.JSON(w, http.StatusOK, out)
}
