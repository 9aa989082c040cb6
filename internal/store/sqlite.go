package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/Kalyan-pallati/chat-app/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development and
// test fallback for PostgresStore and implements the same DataStore interface.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db". Pass ":memory:" for an
// in-memory database (used by tests).
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dsn = dbPath + "?_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		hashed_password TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS friend_requests (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (sender_id, recipient_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		read INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_friend_requests_recipient ON friend_requests(recipient_id, status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, hashedPassword string) (*models.User, error) {
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, hashed_password, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), username, email, hashedPassword, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id.String())
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `WHERE username = ?`, username)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, hashed_password, full_name, bio, created_at
		FROM users `+where, arg).Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.HashedPassword,
		&user.FullName,
		&user.Bio,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SearchUsers finds users whose username contains the query, case-insensitive.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, hashed_password, full_name, bio, created_at
		FROM users
		WHERE username LIKE '%' || ? || '%'
		ORDER BY username
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var idStr string
		if err := rows.Scan(&idStr, &u.Username, &u.Email, &u.HashedPassword, &u.FullName, &u.Bio, &u.CreatedAt); err != nil {
			return nil, err
		}
		if u.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CountMessages returns the total number of persisted messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// CreateFriendRequest creates a pending friend request.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, sender, recipient uuid.UUID) (*models.FriendRequest, error) {
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friend_requests (id, sender_id, recipient_id, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
	`, id.String(), sender.String(), recipient.String(), now)
	if err != nil {
		return nil, err
	}

	return s.GetFriendRequest(ctx, id)
}

// GetFriendRequest retrieves a friend request by ID.
func (s *SQLiteStore) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	return s.getFriendRequest(ctx, `WHERE id = ?`, id.String())
}

// GetFriendRequestBetween retrieves the request linking two users in either
// direction, regardless of status.
func (s *SQLiteStore) GetFriendRequestBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error) {
	return s.getFriendRequest(ctx, `
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)`,
		a.String(), b.String(), b.String(), a.String())
}

func (s *SQLiteStore) getFriendRequest(ctx context.Context, where string, args ...any) (*models.FriendRequest, error) {
	fr := &models.FriendRequest{}
	var idStr, senderStr, recipientStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender_id, recipient_id, status, created_at
		FROM friend_requests `+where, args...).Scan(
		&idStr, &senderStr, &recipientStr, &fr.Status, &fr.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	fr.ID = uuid.MustParse(idStr)
	fr.Sender = uuid.MustParse(senderStr)
	fr.Recipient = uuid.MustParse(recipientStr)
	return fr, nil
}

// PendingFriendRequests lists pending requests addressed to recipient, joined
// with the sender's profile.
func (s *SQLiteStore) PendingFriendRequests(ctx context.Context, recipient uuid.UUID) ([]models.PendingFriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fr.id, u.id, u.username, fr.status
		FROM friend_requests fr
		JOIN users u ON u.id = fr.sender_id
		WHERE fr.recipient_id = ? AND fr.status = 'pending'
		ORDER BY fr.created_at
	`, recipient.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.PendingFriendRequest
	for rows.Next() {
		var r models.PendingFriendRequest
		var idStr, senderStr string
		if err := rows.Scan(&idStr, &senderStr, &r.SenderUsername, &r.Status); err != nil {
			return nil, err
		}
		r.ID = uuid.MustParse(idStr)
		r.SenderID = uuid.MustParse(senderStr)
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// AcceptFriendRequest marks a pending request as accepted.
func (s *SQLiteStore) AcceptFriendRequest(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE friend_requests SET status = 'accepted' WHERE id = ?
	`, id.String())
	return err
}

// DeleteFriendRequest removes a request (reject flow).
func (s *SQLiteStore) DeleteFriendRequest(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = ?`, id.String())
	return err
}

// ListFriends returns accepted friends of userID with the most recent message
// in each conversation, ordered by recent activity. SQLite has no LATERAL
// join, so the preview is fetched per friend.
func (s *SQLiteStore) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.full_name, u.bio
		FROM friend_requests fr
		JOIN users u
		  ON u.id = CASE WHEN fr.sender_id = ? THEN fr.recipient_id ELSE fr.sender_id END
		WHERE fr.status = 'accepted'
		  AND (fr.sender_id = ? OR fr.recipient_id = ?)
	`, userID.String(), userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.FriendSummary
	for rows.Next() {
		var f models.FriendSummary
		var idStr string
		if err := rows.Scan(&idStr, &f.Username, &f.Email, &f.FullName, &f.Bio); err != nil {
			return nil, err
		}
		f.ID = uuid.MustParse(idStr)
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range friends {
		last, err := s.LastMessage(ctx, userID.String(), friends[i].ID.String())
		if err != nil {
			return nil, err
		}
		if last != nil {
			t := last.Timestamp
			friends[i].LastMessageAt = &t
			friends[i].LastMessageText = last.Content
		}
	}

	// Most recently active conversation first, friends with no messages last.
	sort.SliceStable(friends, func(i, j int) bool {
		a, b := friends[i].LastMessageAt, friends[j].LastMessageAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})

	return friends, nil
}

// Append persists a message, assigning its ULID and timestamp.
func (s *SQLiteStore) Append(ctx context.Context, sender, recipient, content string, createdAt time.Time) (*models.Message, error) {
	msg := &models.Message{
		ID:        ulid.Make().String(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Timestamp: createdAt.UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, created_at, read)
		VALUES (?, ?, ?, ?, ?, 0)
	`, msg.ID, msg.Sender, msg.Recipient, msg.Content, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// History returns all messages between a and b, ascending by timestamp.
func (s *SQLiteStore) History(ctx context.Context, a, b string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, content, created_at, read
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Content, &m.Timestamp, &m.Read); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// LastMessage returns the most recent message between a and b, or nil.
func (s *SQLiteStore) LastMessage(ctx context.Context, a, b string) (*models.Message, error) {
	m := &models.Message{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender_id, recipient_id, content, created_at, read
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)
		ORDER BY id DESC LIMIT 1
	`, a, b, b, a).Scan(&m.ID, &m.Sender, &m.Recipient, &m.Content, &m.Timestamp, &m.Read)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// MarkConversationRead flags messages from friend to reader as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, reader, friend string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read = 1
		WHERE sender_id = ? AND recipient_id = ? AND read = 0
	`, friend, reader)
	return err
}
