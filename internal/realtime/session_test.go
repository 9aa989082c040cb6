package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Kalyan-pallati/chat-app/internal/auth"
	"github.com/Kalyan-pallati/chat-app/internal/models"
	"github.com/Kalyan-pallati/chat-app/internal/store"
)

// memStore is an in-memory MessageStore for session tests.
type memStore struct {
	mu       sync.Mutex
	messages []models.Message
	fail     bool
}

func (m *memStore) Append(ctx context.Context, sender, recipient, content string, createdAt time.Time) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("%w: backend down", store.ErrStoreUnavailable)
	}
	msg := models.Message{
		ID:        fmt.Sprintf("%026d", len(m.messages)),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Timestamp: createdAt,
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memStore) History(ctx context.Context, a, b string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if (msg.Sender == a && msg.Recipient == b) || (msg.Sender == b && msg.Recipient == a) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) LastMessage(ctx context.Context, a, b string) (*models.Message, error) {
	msgs, _ := m.History(ctx, a, b)
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[len(msgs)-1], nil
}

func (m *memStore) MarkConversationRead(ctx context.Context, reader, friend string) error {
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type sessionFixture struct {
	server   *httptest.Server
	registry *Registry
	store    *memStore
	tokens   *auth.TokenIssuer
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	registry := NewRegistry()
	ms := &memStore{}
	tokens := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	handler := NewHandler(registry, ms, tokens, nil, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)
	return &sessionFixture{server: server, registry: registry, store: ms, tokens: tokens}
}

func (f *sessionFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.Issue(userID)
	require.NoError(t, err)
	return f.dialToken(t, token)
}

func (f *sessionFixture) dialToken(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) models.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var msg models.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitOnline(t *testing.T, r *Registry, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !r.Online(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never came online", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionRejectsInvalidToken(t *testing.T) {
	f := newSessionFixture(t)
	ws := f.dialToken(t, "not-a-token")

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, CloseAuthFailure, closeErr.Code)
}

func TestSessionDeliversToSenderAndRecipient(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)

	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	waitOnline(t, f.registry, "alice")
	waitOnline(t, f.registry, "bob")

	req.NoError(alice.WriteJSON(map[string]string{"recipient": "bob", "content": "hi bob"}))

	got := readMessage(t, bob)
	req.Equal("alice", got.Sender)
	req.Equal("bob", got.Recipient)
	req.Equal("hi bob", got.Content)
	req.NotEmpty(got.ID)

	echo := readMessage(t, alice)
	req.Equal(got.ID, echo.ID)
	req.Equal("hi bob", echo.Content)
}

func TestSessionPersistsForOfflineRecipient(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)

	alice := f.dial(t, "alice")
	waitOnline(t, f.registry, "alice")

	req.NoError(alice.WriteJSON(map[string]string{"recipient": "carol", "content": "see you later"}))

	// Sender still gets the echo; the message waits in the store.
	echo := readMessage(t, alice)
	req.Equal("carol", echo.Recipient)

	history, err := f.store.History(context.Background(), "alice", "carol")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("see you later", history[0].Content)
}

func TestSessionDropsMalformedFrameAndKeepsGoing(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)

	alice := f.dial(t, "alice")
	waitOnline(t, f.registry, "alice")

	// Wrong type for recipient, then missing content, then garbage. None of
	// these may produce a persisted message or end the session.
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"recipient": 2, "content": "x"}`)))
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"recipient": "bob"}`)))
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	req.NoError(alice.WriteJSON(map[string]string{"recipient": "bob", "content": "still here"}))

	echo := readMessage(t, alice)
	req.Equal("still here", echo.Content)
	req.Equal(1, f.store.count())
}

func TestSessionReportsStoreFailureToSenderOnly(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	f.store.fail = true

	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	waitOnline(t, f.registry, "alice")
	waitOnline(t, f.registry, "bob")

	req.NoError(alice.WriteJSON(map[string]string{"recipient": "bob", "content": "lost"}))

	req.NoError(alice.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, data, err := alice.ReadMessage()
	req.NoError(err)

	var notice struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	req.NoError(json.Unmarshal(data, &notice))
	req.Equal("error", notice.Type)
	req.Equal("message could not be delivered", notice.Error)

	// The recipient sees nothing.
	req.NoError(bob.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	_, _, err = bob.ReadMessage()
	var netErr interface{ Timeout() bool }
	req.ErrorAs(err, &netErr)
	req.True(netErr.Timeout())
	req.Equal(0, f.store.count())
}

func TestSessionMultiDeviceEcho(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)

	phone := f.dial(t, "alice")
	laptop := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	waitOnline(t, f.registry, "bob")
	deadline := time.Now().Add(2 * time.Second)
	for f.registry.ConnectionCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("connections never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req.NoError(bob.WriteJSON(map[string]string{"recipient": "alice", "content": "ping"}))

	req.Equal("ping", readMessage(t, phone).Content)
	req.Equal("ping", readMessage(t, laptop).Content)
	req.Equal("ping", readMessage(t, bob).Content)
}

func TestSessionUnregistersOnClose(t *testing.T) {
	f := newSessionFixture(t)

	alice := f.dial(t, "alice")
	waitOnline(t, f.registry, "alice")

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	deadline := time.Now().Add(2 * time.Second)
	for f.registry.Online("alice") {
		if time.Now().After(deadline) {
			t.Fatal("session never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
