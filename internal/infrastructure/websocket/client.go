package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default client configuration constants.
const (
	defaultReadBufferSize  = 1024
	defaultWriteBufferSize = 1024
	defaultPingInterval    = 30 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 32
)

// Client message types.
const (
	MessageDismiss = "dismiss"
	MessagePing    = "ping"
)

// ClientConfig holds configuration for WebSocket clients.
type ClientConfig struct {
	ReadBufferSize  int
	WriteBufferSize int

	// PingInterval is how often the server pings; it must be shorter than PongWait.
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	MaxMessageSize int64
}

// DefaultClientConfig returns sensible default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReadBufferSize:  defaultReadBufferSize,
		WriteBufferSize: defaultWriteBufferSize,
		PingInterval:    defaultPingInterval,
		PongWait:        defaultPongWait,
		WriteWait:       defaultWriteWait,
		MaxMessageSize:  defaultMaxMessageSize,
	}
}

// ClientMessage is a message sent by the browser. htmx adds a HEADERS
// member to every ws-send payload; it is ignored.
type ClientMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Client is one browser connection bound to a session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string

	config    ClientConfig
	logger    *slog.Logger
	onDismiss func(id string)

	closeHooks []func()
	hooksMu    sync.Mutex

	closed   bool
	closedMu sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientConfig sets the client configuration.
func WithClientConfig(config ClientConfig) ClientOption {
	return func(c *Client) {
		c.config = config
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDismissHandler handles dismiss requests sent by the browser.
func WithDismissHandler(fn func(id string)) ClientOption {
	return func(c *Client) {
		c.onDismiss = fn
	}
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, opts ...ClientOption) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, defaultSendBufferSize),
		sessionID: sessionID,
		config:    DefaultClientConfig(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SessionID returns the session the client belongs to.
func (c *Client) SessionID() string {
	return c.sessionID
}

// IsClosed returns whether the client connection has been closed.
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// OnClose registers fn to run once when the client closes.
// If the client is already closed fn runs immediately.
func (c *Client) OnClose(fn func()) {
	c.hooksMu.Lock()
	if !c.IsClosed() {
		c.closeHooks = append(c.closeHooks, fn)
		c.hooksMu.Unlock()
		return
	}
	c.hooksMu.Unlock()
	fn()
}

// ReadPump reads browser messages until the connection fails.
// It should be run as a goroutine.
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error",
					slog.String("session_id", c.sessionID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.handleClientMessage(message)
	}
}

// WritePump writes queued messages and keepalive pings.
// It should be run as a goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error",
					slog.String("session_id", c.sessionID),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("invalid client message",
			slog.String("session_id", c.sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch msg.Type {
	case MessageDismiss:
		if c.onDismiss != nil {
			c.onDismiss(msg.ID)
		}
	case MessagePing:
		c.Send([]byte(`{"type":"pong"}`))
	default:
		c.logger.Debug("unknown message type",
			slog.String("session_id", c.sessionID),
			slog.String("type", msg.Type),
		)
	}
}

// Send queues message for the browser. It never blocks; when the buffer is
// full the message is dropped.
func (c *Client) Send(message []byte) bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn("client send buffer full", slog.String("session_id", c.sessionID))
		return false
	}
}

// Close closes the connection and runs the close hooks. It is idempotent.
func (c *Client) Close() {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.closedMu.Unlock()

	_ = c.conn.Close()

	// Hooks run outside closedMu: they may wait for an in-flight Send.
	c.hooksMu.Lock()
	hooks := c.closeHooks
	c.closeHooks = nil
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	c.logger.Debug("client connection closed", slog.String("session_id", c.sessionID))
}
