// Package chat provides a Go client for the chat-app API: REST calls for
// accounts, friends and history, and a websocket session for live messaging.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a chat-app API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Message is a delivered or historical message.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Friend is a friend-list entry.
type Friend struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	LastMessageAt   *time.Time `json:"last_message_time,omitempty"`
	LastMessageText string     `json:"last_message_content,omitempty"`
	Unread          int64      `json:"unread,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type apiError struct {
	Error string `json:"error"`
}

// Signup registers an account and stores the issued token on the client.
func (c *Client) Signup(username, email, password string) error {
	return c.authenticate("/auth/signup", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

// Login authenticates and stores the issued token on the client.
func (c *Client) Login(username, password string) error {
	return c.authenticate("/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func (c *Client) authenticate(path string, body map[string]string) error {
	var resp tokenResponse
	if err := c.post(path, body, &resp); err != nil {
		return err
	}
	c.Token = resp.AccessToken
	return nil
}

// History fetches the conversation with a friend, oldest first.
func (c *Client) History(friendID string) ([]Message, error) {
	var messages []Message
	err := c.get("/history/"+url.PathEscape(friendID), &messages)
	return messages, err
}

// Friends fetches the friend list with last-message previews.
func (c *Client) Friends() ([]Friend, error) {
	var friends []Friend
	err := c.get("/friends", &friends)
	return friends, err
}

// SendFriendRequest sends a friend request by username.
func (c *Client) SendFriendRequest(username string) error {
	return c.post("/friends/request/"+url.PathEscape(username), nil, nil)
}

// Session is a live websocket connection to the server.
type Session struct {
	conn *websocket.Conn
}

// Connect opens the realtime channel using the client's token.
func (c *Client) Connect() (*Session, error) {
	if c.Token == "" {
		return nil, fmt.Errorf("not authenticated")
	}

	wsURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws"
	wsURL.RawQuery = "token=" + url.QueryEscape(c.Token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// Send sends a message to a recipient.
func (s *Session) Send(recipient, content string) error {
	return s.conn.WriteJSON(map[string]string{
		"recipient": recipient,
		"content":   content,
	})
}

// Receive blocks until the next delivered message or an error notice.
// A server error notice is returned as a Go error.
func (s *Session) Receive() (*Message, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		var probe struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &probe) == nil && probe.Type == "error" {
			return nil, fmt.Errorf("server: %s", probe.Error)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		return &msg, nil
	}
}

// Close closes the websocket session.
func (s *Session) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
