package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Kalyan-pallati/chat-app/internal/models"
)

// ErrStoreUnavailable is returned when the durable backend cannot accept a
// write. Callers treat it as transient: the session reports the failure to
// the sender and keeps running.
var ErrStoreUnavailable = errors.New("message store unavailable")

// MessageStore is the append/read contract the realtime core depends on.
// Append is atomic per call; once it returns, the message is visible to every
// subsequent History call for that pair.
type MessageStore interface {
	// Append persists a message and assigns its ID and timestamp.
	Append(ctx context.Context, sender, recipient, content string, createdAt time.Time) (*models.Message, error)
	// History returns every message between a and b, in either direction,
	// ascending by timestamp.
	History(ctx context.Context, a, b string) ([]models.Message, error)
	// LastMessage returns the most recent message between a and b, or nil.
	LastMessage(ctx context.Context, a, b string) (*models.Message, error)
	// MarkConversationRead flags every message sent by friend to reader as read.
	MarkConversationRead(ctx context.Context, reader, friend string) error
}

// DataStore defines the interface for persistent storage of users, friend
// relationships and messages. Both PostgresStore and SQLiteStore implement it.
type DataStore interface {
	MessageStore

	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, email, hashedPassword string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)

	// Friend operations
	CreateFriendRequest(ctx context.Context, sender, recipient uuid.UUID) (*models.FriendRequest, error)
	GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	GetFriendRequestBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error)
	PendingFriendRequests(ctx context.Context, recipient uuid.UUID) ([]models.PendingFriendRequest, error)
	AcceptFriendRequest(ctx context.Context, id uuid.UUID) error
	DeleteFriendRequest(ctx context.Context, id uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendSummary, error)
}
