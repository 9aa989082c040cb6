package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Kalyan-pallati/chat-app/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func mustUser(t *testing.T, s *SQLiteStore, username string) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, username+"@example.com", "hashed")
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func TestSQLiteUserLifecycle(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	req.Equal("alice", alice.Username)
	req.Equal("alice@example.com", alice.Email)
	req.NotEqual(uuid.Nil, alice.ID)

	byID, err := s.GetUserByID(ctx, alice.ID)
	req.NoError(err)
	req.Equal(alice.ID, byID.ID)

	byName, err := s.GetUserByUsername(ctx, "alice")
	req.NoError(err)
	req.Equal(alice.ID, byName.ID)

	// Missing user is nil, not an error.
	missing, err := s.GetUserByID(ctx, uuid.Must(uuid.NewV7()))
	req.NoError(err)
	req.Nil(missing)

	// Duplicate username is rejected by the unique constraint.
	_, err = s.CreateUser(ctx, "alice", "other@example.com", "hashed")
	req.Error(err)

	mustUser(t, s, "alicia")
	mustUser(t, s, "bob")

	found, err := s.SearchUsers(ctx, "ali", 10)
	req.NoError(err)
	req.Len(found, 2)

	count, err := s.CountUsers(ctx)
	req.NoError(err)
	req.EqualValues(3, count)
}

func TestSQLiteAppendAndHistory(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	m1, err := s.Append(ctx, "alice", "bob", "first", base)
	req.NoError(err)
	req.NotEmpty(m1.ID)

	m2, err := s.Append(ctx, "bob", "alice", "second", base.Add(time.Second))
	req.NoError(err)
	_, err = s.Append(ctx, "alice", "carol", "unrelated", base.Add(2*time.Second))
	req.NoError(err)
	m3, err := s.Append(ctx, "alice", "bob", "third", base.Add(3*time.Second))
	req.NoError(err)

	history, err := s.History(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(history, 3)
	req.Equal([]string{"first", "second", "third"},
		[]string{history[0].Content, history[1].Content, history[2].Content})

	// Either argument order yields the same conversation.
	reversed, err := s.History(ctx, "bob", "alice")
	req.NoError(err)
	req.Equal(history, reversed)

	// ULIDs preserve append order.
	req.Less(m1.ID, m2.ID)
	req.Less(m2.ID, m3.ID)

	last, err := s.LastMessage(ctx, "alice", "bob")
	req.NoError(err)
	req.Equal("third", last.Content)

	none, err := s.LastMessage(ctx, "bob", "carol")
	req.NoError(err)
	req.Nil(none)

	total, err := s.CountMessages(ctx)
	req.NoError(err)
	req.EqualValues(4, total)
}

func TestSQLiteMarkConversationRead(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := s.Append(ctx, "alice", "bob", "to bob", now)
	req.NoError(err)
	_, err = s.Append(ctx, "bob", "alice", "to alice", now.Add(time.Second))
	req.NoError(err)

	// bob reads the conversation: only alice's message flips.
	req.NoError(s.MarkConversationRead(ctx, "bob", "alice"))

	history, err := s.History(ctx, "alice", "bob")
	req.NoError(err)
	req.True(history[0].Read)
	req.False(history[1].Read)
}

func TestSQLiteFriendFlow(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	fr, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	req.NoError(err)
	req.Equal(models.FriendPending, fr.Status)
	req.Equal(alice.ID, fr.Sender)
	req.Equal(bob.ID, fr.Recipient)

	// Lookup works in both directions, so a reverse duplicate can be caught.
	between, err := s.GetFriendRequestBetween(ctx, bob.ID, alice.ID)
	req.NoError(err)
	req.Equal(fr.ID, between.ID)

	pending, err := s.PendingFriendRequests(ctx, bob.ID)
	req.NoError(err)
	req.Len(pending, 1)
	req.Equal("alice", pending[0].SenderUsername)

	req.NoError(s.AcceptFriendRequest(ctx, fr.ID))

	accepted, err := s.GetFriendRequest(ctx, fr.ID)
	req.NoError(err)
	req.Equal(models.FriendAccepted, accepted.Status)

	pending, err = s.PendingFriendRequests(ctx, bob.ID)
	req.NoError(err)
	req.Empty(pending)

	// Rejected requests are removed entirely.
	fr2, err := s.CreateFriendRequest(ctx, carol.ID, bob.ID)
	req.NoError(err)
	req.NoError(s.DeleteFriendRequest(ctx, fr2.ID))
	gone, err := s.GetFriendRequest(ctx, fr2.ID)
	req.NoError(err)
	req.Nil(gone)

	friends, err := s.ListFriends(ctx, alice.ID)
	req.NoError(err)
	req.Len(friends, 1)
	req.Equal(bob.ID, friends[0].ID)
	req.Nil(friends[0].LastMessageAt)

	// The view is symmetric for the accepting side.
	friends, err = s.ListFriends(ctx, bob.ID)
	req.NoError(err)
	req.Len(friends, 1)
	req.Equal(alice.ID, friends[0].ID)
}

func TestSQLiteListFriendsOrdering(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")
	dave := mustUser(t, s, "dave")

	for _, friend := range []uuid.UUID{bob.ID, carol.ID, dave.ID} {
		fr, err := s.CreateFriendRequest(ctx, alice.ID, friend)
		req.NoError(err)
		req.NoError(s.AcceptFriendRequest(ctx, fr.ID))
	}

	now := time.Now().UTC()
	_, err := s.Append(ctx, alice.ID.String(), bob.ID.String(), "old", now.Add(-time.Hour))
	req.NoError(err)
	_, err = s.Append(ctx, carol.ID.String(), alice.ID.String(), "recent", now)
	req.NoError(err)

	friends, err := s.ListFriends(ctx, alice.ID)
	req.NoError(err)
	req.Len(friends, 3)

	// Active conversations first, silent friends last.
	req.Equal(carol.ID, friends[0].ID)
	req.Equal("recent", friends[0].LastMessageText)
	req.Equal(bob.ID, friends[1].ID)
	req.Equal(dave.ID, friends[2].ID)
	req.Nil(friends[2].LastMessageAt)
}

func TestSQLiteAppendWrapsStoreUnavailable(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	s.db.Close()

	_, err := s.Append(context.Background(), "alice", "bob", "x", time.Now())
	req.ErrorIs(err, ErrStoreUnavailable)
}
