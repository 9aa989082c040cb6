package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Kalyan-pallati/chat-app/internal/auth"
	"github.com/Kalyan-pallati/chat-app/internal/metrics"
)

// SignupRequest represents the signup request body.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Signup handles user registration and issues a token on success.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidUsername(req.Username) {
		h.Error(w, http.StatusBadRequest, "username must be 3-32 characters, letters, digits or underscore")
		return
	}
	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < 8 || len(req.Password) > 72 {
		h.Error(w, http.StatusBadRequest, "password must be 8-72 characters")
		return
	}

	existing, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusBadRequest, "username already taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Username, req.Email, hash)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	token, err := h.tokens.Issue(user.ID.String())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.JSON(w, http.StatusCreated, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Login verifies credentials and issues a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil || !auth.CheckPassword(req.Password, user.HashedPassword) {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID.String())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.JSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}
