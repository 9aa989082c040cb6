package models

import (
	"time"

	"github.com/google/uuid"
)

// FriendStatus is the state of a friend request.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
)

// FriendRequest represents a friendship edge between two users. A row with
// status "accepted" means the pair are friends; direction only matters while
// the request is pending.
type FriendRequest struct {
	ID        uuid.UUID    `json:"id"`
	Sender    uuid.UUID    `json:"sender_id"`
	Recipient uuid.UUID    `json:"recipient_id"`
	Status    FriendStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// PendingFriendRequest is a pending request joined with the sender's profile,
// as shown on the requests page.
type PendingFriendRequest struct {
	ID             uuid.UUID    `json:"id"`
	SenderID       uuid.UUID    `json:"sender_id"`
	SenderUsername string       `json:"sender_username"`
	Status         FriendStatus `json:"status"`
}

// FriendSummary is a friend entry as shown in the sidebar: profile fields plus
// a preview of the most recent message in the conversation.
type FriendSummary struct {
	ID              uuid.UUID  `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	FullName        string     `json:"full_name,omitempty"`
	Bio             string     `json:"bio,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_time,omitempty"`
	LastMessageText string     `json:"last_message_content,omitempty"`
	Unread          int64      `json:"unread,omitempty"`
}
