package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Kalyan-pallati/chat-app/internal/auth"
	"github.com/Kalyan-pallati/chat-app/internal/metrics"
	"github.com/Kalyan-pallati/chat-app/internal/store"
)

const (
	// CloseAuthFailure is the close code sent when the handshake token is
	// rejected, distinct from normal closure.
	CloseAuthFailure = 4003

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 * 1024
	persistTimeout = 5 * time.Second
)

// Presence is the optional hot-state sink sessions report connect, disconnect
// and unread events to. Implemented by store.RedisStore. All calls are
// best-effort; failures never affect delivery.
type Presence interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string) error
	IncrUnread(ctx context.Context, reader, sender string) error
}

// inboundFrame is the wire shape clients send over the websocket.
type inboundFrame struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

// errorNotice is sent to the sending connection only, when persistence fails.
type errorNotice struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Handler upgrades websocket connections and runs one session per connection.
type Handler struct {
	registry *Registry
	messages store.MessageStore
	verifier auth.TokenVerifier
	presence Presence
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler wires the realtime endpoint. presence may be nil when Redis is
// not configured.
func NewHandler(registry *Registry, messages store.MessageStore, verifier auth.TokenVerifier, presence Presence, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		messages: messages,
		verifier: verifier,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// ServeWS handles GET /ws?token=<jwt>. The token is verified after the
// upgrade so rejection can be signalled with a websocket close code rather
// than an opaque HTTP error.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		metrics.SessionsRejected.Inc()
		msg := websocket.FormatCloseMessage(CloseAuthFailure, "authentication failed")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		ws.Close()
		return
	}

	s := &session{
		h:      h,
		userID: userID,
		ws:     ws,
		conn:   NewConn(),
		logger: h.logger.With().Str("user", userID).Logger(),
	}
	s.run()
}

// session is the per-connection protocol handler. It owns the websocket: the
// read loop runs on the calling goroutine, the write pump on its own, and
// teardown unregisters exactly once whatever the exit cause.
type session struct {
	h      *Handler
	userID string
	ws     *websocket.Conn
	conn   *Conn
	logger zerolog.Logger
}

func (s *session) run() {
	s.h.registry.Register(s.userID, s.conn)
	s.presenceOnline()
	s.logger.Info().Msg("session started")

	defer func() {
		s.conn.Kill()
		s.h.registry.Unregister(s.userID, s.conn)
		s.presenceOffline()
		s.ws.Close()
		s.logger.Info().Msg("session ended")
	}()

	go s.writePump()
	s.readLoop()
}

// readLoop processes inbound frames strictly in arrival order until the
// transport closes or the connection is killed.
func (s *session) readLoop() {
	s.ws.SetReadLimit(maxFrameSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
		s.presenceHeartbeat()
		return nil
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame validates, persists and dispatches one inbound frame.
// Malformed frames are dropped silently; a failed append is reported to this
// connection only and never dispatched.
func (s *session) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Recipient == "" || frame.Content == "" {
		metrics.MalformedFrames.Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	msg, err := s.h.messages.Append(ctx, s.userID, frame.Recipient, frame.Content, time.Now())
	if err != nil {
		metrics.PersistFailures.Inc()
		s.logger.Warn().Err(err).Msg("message append failed")
		notice, _ := json.Marshal(errorNotice{Type: "error", Error: "message could not be delivered"})
		if !s.conn.deliver(notice) {
			s.conn.Kill()
		}
		return
	}
	metrics.MessagesPersisted.Inc()

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("payload marshal failed")
		return
	}

	// Two independent dispatches: recipient first, then the sender's own
	// connections for multi-device echo. Partial delivery degrades per
	// connection, never as a unit.
	s.h.registry.Dispatch(frame.Recipient, payload)
	s.h.registry.Dispatch(s.userID, payload)

	if frame.Recipient != s.userID {
		s.incrUnread(frame.Recipient)
	}
}

// writePump owns all writes to the websocket: queued payloads, periodic
// pings, and the close frame once the connection is killed.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.conn.Outbound():
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.conn.Kill()
				s.ws.Close()
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Kill()
				s.ws.Close()
				return
			}
		case <-s.conn.Done():
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.ws.Close()
			return
		}
	}
}

func (s *session) presenceOnline() {
	if s.h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.h.presence.SetOnline(ctx, s.userID); err != nil {
		s.logger.Warn().Err(err).Msg("presence set failed")
	}
}

func (s *session) presenceOffline() {
	if s.h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.h.presence.SetOffline(ctx, s.userID); err != nil {
		s.logger.Warn().Err(err).Msg("presence clear failed")
	}
}

func (s *session) presenceHeartbeat() {
	if s.h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.h.presence.Heartbeat(ctx, s.userID)
}

func (s *session) incrUnread(recipient string) {
	if s.h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.h.presence.IncrUnread(ctx, recipient, s.userID); err != nil {
		s.logger.Warn().Err(err).Msg("unread increment failed")
	}
}
