package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// presenceTTL bounds how stale a presence key can get if a server dies
	// without cleaning up; live connections refresh it via heartbeat.
	presenceTTL = 90 * time.Second
)

// RedisStore handles Redis operations for presence, unread counters and rate
// limiting. All of it is hot, reconstructible data; durability lives in the
// DataStore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware (rate limiting).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// presenceKey returns the key for a user's presence marker.
func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// unreadKey returns the key for an unread counter, per reader/sender pair.
func unreadKey(reader, sender string) string {
	return fmt.Sprintf("unread:%s:%s", reader, sender)
}

// SetOnline marks a user online. The value counts live connections so that a
// multi-device user stays online until the last connection drops.
func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, presenceKey(userID))
	pipe.Expire(ctx, presenceKey(userID), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline decrements the connection count, removing the marker at zero.
func (s *RedisStore) SetOffline(ctx context.Context, userID string) error {
	n, err := s.client.Decr(ctx, presenceKey(userID)).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return s.client.Del(ctx, presenceKey(userID)).Err()
	}
	return nil
}

// Heartbeat refreshes the presence TTL for a user with live connections.
func (s *RedisStore) Heartbeat(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, presenceKey(userID), presenceTTL).Err()
}

// IsOnline reports whether a user has at least one live connection.
func (s *RedisStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrUnread bumps the unread counter for a message from sender to reader.
func (s *RedisStore) IncrUnread(ctx context.Context, reader, sender string) error {
	return s.client.Incr(ctx, unreadKey(reader, sender)).Err()
}

// GetUnread returns the unread count for messages from sender to reader.
func (s *RedisStore) GetUnread(ctx context.Context, reader, sender string) (int64, error) {
	n, err := s.client.Get(ctx, unreadKey(reader, sender)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// ResetUnread clears the unread counter after the reader fetches history.
func (s *RedisStore) ResetUnread(ctx context.Context, reader, sender string) error {
	return s.client.Del(ctx, unreadKey(reader, sender)).Err()
}
