package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/Kalyan-pallati/chat-app/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email, hashedPassword string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, hashed_password)
		VALUES ($1, $2, $3, $4)
		RETURNING id, username, email, hashed_password, full_name, bio, created_at
	`, uuid.Must(uuid.NewV7()), username, email, hashedPassword).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.HashedPassword,
		&user.FullName,
		&user.Bio,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `WHERE username = $1`, username)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, hashed_password, full_name, bio, created_at
		FROM users `+where, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.HashedPassword,
		&user.FullName,
		&user.Bio,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// SearchUsers finds users whose username contains the query, case-insensitive.
func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, email, hashed_password, full_name, bio, created_at
		FROM users
		WHERE username ILIKE '%' || $1 || '%'
		ORDER BY username
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.FullName, &u.Bio, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CountMessages returns the total number of persisted messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// CreateFriendRequest creates a pending friend request.
func (s *PostgresStore) CreateFriendRequest(ctx context.Context, sender, recipient uuid.UUID) (*models.FriendRequest, error) {
	fr := &models.FriendRequest{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO friend_requests (id, sender_id, recipient_id, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, sender_id, recipient_id, status, created_at
	`, uuid.Must(uuid.NewV7()), sender, recipient).Scan(
		&fr.ID, &fr.Sender, &fr.Recipient, &fr.Status, &fr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return fr, nil
}

// GetFriendRequest retrieves a friend request by ID.
func (s *PostgresStore) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	fr := &models.FriendRequest{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, sender_id, recipient_id, status, created_at
		FROM friend_requests WHERE id = $1
	`, id).Scan(&fr.ID, &fr.Sender, &fr.Recipient, &fr.Status, &fr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return fr, nil
}

// GetFriendRequestBetween retrieves the request linking two users in either
// direction, regardless of status.
func (s *PostgresStore) GetFriendRequestBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error) {
	fr := &models.FriendRequest{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, sender_id, recipient_id, status, created_at
		FROM friend_requests
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
	`, a, b).Scan(&fr.ID, &fr.Sender, &fr.Recipient, &fr.Status, &fr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return fr, nil
}

// PendingFriendRequests lists pending requests addressed to recipient, joined
// with the sender's profile.
func (s *PostgresStore) PendingFriendRequests(ctx context.Context, recipient uuid.UUID) ([]models.PendingFriendRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fr.id, u.id, u.username, fr.status
		FROM friend_requests fr
		JOIN users u ON u.id = fr.sender_id
		WHERE fr.recipient_id = $1 AND fr.status = 'pending'
		ORDER BY fr.created_at
	`, recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.PendingFriendRequest
	for rows.Next() {
		var r models.PendingFriendRequest
		if err := rows.Scan(&r.ID, &r.SenderID, &r.SenderUsername, &r.Status); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// AcceptFriendRequest marks a pending request as accepted.
func (s *PostgresStore) AcceptFriendRequest(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE friend_requests SET status = 'accepted' WHERE id = $1
	`, id)
	return err
}

// DeleteFriendRequest removes a request (reject flow).
func (s *PostgresStore) DeleteFriendRequest(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM friend_requests WHERE id = $1`, id)
	return err
}

// ListFriends returns accepted friends of userID with the most recent message
// in each conversation, ordered by recent activity.
func (s *PostgresStore) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.full_name, u.bio, m.content, m.created_at
		FROM friend_requests fr
		JOIN users u
		  ON u.id = CASE WHEN fr.sender_id = $1 THEN fr.recipient_id ELSE fr.sender_id END
		LEFT JOIN LATERAL (
			SELECT content, created_at FROM messages
			WHERE (sender_id = $2 AND recipient_id = u.id::text)
			   OR (sender_id = u.id::text AND recipient_id = $2)
			ORDER BY id DESC LIMIT 1
		) m ON true
		WHERE fr.status = 'accepted'
		  AND (fr.sender_id = $1 OR fr.recipient_id = $1)
		ORDER BY m.created_at DESC NULLS LAST
	`, userID, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.FriendSummary
	for rows.Next() {
		var f models.FriendSummary
		var content *string
		if err := rows.Scan(&f.ID, &f.Username, &f.Email, &f.FullName, &f.Bio, &content, &f.LastMessageAt); err != nil {
			return nil, err
		}
		if content != nil {
			f.LastMessageText = *content
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// Append persists a message, assigning its ULID and timestamp.
func (s *PostgresStore) Append(ctx context.Context, sender, recipient, content string, createdAt time.Time) (*models.Message, error) {
	msg := &models.Message{
		ID:        ulid.Make().String(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Timestamp: createdAt.UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, created_at, read)
		VALUES ($1, $2, $3, $4, $5, false)
	`, msg.ID, msg.Sender, msg.Recipient, msg.Content, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// History returns all messages between a and b, ascending by timestamp.
func (s *PostgresStore) History(ctx context.Context, a, b string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, recipient_id, content, created_at, read
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC, id ASC
	`, a, b)
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
func (s *PostgresStore) LastMessage(ctx context.Context, a, b string) (*models.Message, error) {
	m := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, sender_id, recipient_id, content, created_at, read
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY id DESC LIMIT 1
	`, a, b).Scan(&m.ID, &m.Sender, &m.Recipient, &m.Content, &m.Timestamp, &m.Read)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// MarkConversationRead flags messages from friend to reader as read.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, reader, friend string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET read = true
		WHERE sender_id = $1 AND recipient_id = $2 AND NOT read
	`, friend, reader)
	return err
}
