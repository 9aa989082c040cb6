package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered chat user.
type User struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	FullName       string    `json:"full_name,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
