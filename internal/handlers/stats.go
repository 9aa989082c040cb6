package handlers

import "net/http"

// StatsResponse represents aggregate service statistics.
type StatsResponse struct {
	Users           int64 `json:"users"`
	Messages        int64 `json:"messages"`
	LiveConnections int   `json:"live_connections"`
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.CountUsers(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	messages, err := h.db.CountMessages(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := StatsResponse{Users: users, Messages: messages}
	if h.registry != nil {
		resp.LiveConnections = h.registry.ConnectionCount()
	}

	h.JSON(w, http.StatusOK, resp)
}
