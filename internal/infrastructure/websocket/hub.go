// Package websocket streams toast state to connected browsers.
package websocket

import (
	"context"
	"log/slog"
	"sync"
)

// Hub tracks live connections by browser session.
type Hub struct {
	clients  map[*Client]struct{}
	sessions map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	closeSess  chan string

	mu sync.RWMutex

	logger   *slog.Logger
	onChange func(n int)

	done      chan struct{}
	doneOnce  sync.Once
	running   bool
	runningMu sync.RWMutex
}

// HubOption configures the Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger for the hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithConnectionGauge reports the connection count after every change.
func WithConnectionGauge(fn func(n int)) HubOption {
	return func(h *Hub) {
		h.onChange = fn
	}
}

// NewHub creates a new Hub with the given options.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		sessions:   make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		closeSess:  make(chan string),
		logger:     slog.Default(),
		onChange:   func(int) {},
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Run processes registrations until ctx is cancelled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		return
	}
	h.running = true
	h.runningMu.Unlock()

	h.logger.InfoContext(ctx, "websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.done:
			h.shutdown()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case sessionID := <-h.closeSess:
			h.closeSession(sessionID)
		}
	}
}

// Stop signals the hub to stop.
func (h *Hub) Stop() {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return
	}
	h.closeDone()
}

func (h *Hub) closeDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *Hub) shutdown() {
	h.runningMu.Lock()
	h.running = false
	h.runningMu.Unlock()
	h.closeDone()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.sessions = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for client := range clients {
		client.Close()
	}
	h.onChange(0)

	h.logger.Info("websocket hub stopped")
}

// Register adds a client. It blocks until the hub loop accepts it.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

// CloseSession closes every connection of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	select {
	case h.closeSess <- sessionID:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]struct{})
	}
	h.sessions[client.sessionID][client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.onChange(n)
	h.logger.Debug("client registered",
		slog.String("session_id", client.sessionID),
		slog.Int("total_clients", n),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		client.Close()
		return
	}
	h.removeLocked(client)
	n := len(h.clients)
	h.mu.Unlock()

	client.Close()
	h.onChange(n)
	h.logger.Debug("client unregistered",
		slog.String("session_id", client.sessionID),
		slog.Int("total_clients", n),
	)
}

func (h *Hub) closeSession(sessionID string) {
	h.mu.Lock()
	victims := make([]*Client, 0, len(h.sessions[sessionID]))
	for client := range h.sessions[sessionID] {
		victims = append(victims, client)
	}
	for _, client := range victims {
		h.removeLocked(client)
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, client := range victims {
		client.Close()
	}
	if len(victims) > 0 {
		h.onChange(n)
		h.logger.Debug("session streams closed",
			slog.String("session_id", sessionID),
			slog.Int("closed", len(victims)),
		)
	}
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client)
	if set, ok := h.sessions[client.sessionID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.sessions, client.sessionID)
		}
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionConnectionCount returns the number of connections of sessionID.
func (h *Hub) SessionConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// IsRunning returns whether the hub loop is active.
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}
