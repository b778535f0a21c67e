// Package websocket provides the HTTP handler for the live toast stream.
package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/infrastructure/httpserver"
	ws "github.com/instwave/digest-web/internal/infrastructure/websocket"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/internal/toast"
)

// Handler configuration constants.
const (
	defaultHandlerReadBufferSize  = 1024
	defaultHandlerWriteBufferSize = 1024

	// StreamPath is where browsers open the toast stream.
	StreamPath = "/ws/toasts"
)

// StoreDirectory hands out the toast store of a session.
// Declared on the consumer side per project guidelines.
type StoreDirectory interface {
	Get(sessionID string) *toast.Store
}

// FrameRenderer renders a toast state as an HTML fragment for lang.
type FrameRenderer func(st toast.State, lang string) ([]byte, error)

// HandlerConfig holds configuration for the WebSocket handler.
type HandlerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin accepts or rejects the Origin of an upgrade request.
	// Nil applies the same-origin check of gorilla/websocket.
	CheckOrigin func(r *http.Request) bool

	Logger       *slog.Logger
	ClientConfig ws.ClientConfig
}

// DefaultHandlerConfig returns a default configuration.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ReadBufferSize:  defaultHandlerReadBufferSize,
		WriteBufferSize: defaultHandlerWriteBufferSize,
		Logger:          slog.Default(),
		ClientConfig:    ws.DefaultClientConfig(),
	}
}

// Handler upgrades requests to toast streams.
type Handler struct {
	hub         *ws.Hub
	broadcaster *ws.Broadcaster
	stores      StoreDirectory
	render      FrameRenderer
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	clientCfg   ws.ClientConfig
}

// NewHandler creates a new WebSocket handler.
func NewHandler(
	hub *ws.Hub,
	broadcaster *ws.Broadcaster,
	stores StoreDirectory,
	render FrameRenderer,
	config HandlerConfig,
) *Handler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = defaultHandlerReadBufferSize
	}
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = defaultHandlerWriteBufferSize
	}

	return &Handler{
		hub:         hub,
		broadcaster: broadcaster,
		stores:      stores,
		render:      render,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:    config.Logger,
		clientCfg: config.ClientConfig,
	}
}

// HandleToasts streams the toast state of the caller's session.
// Anonymous sessions are streamed too; the login form reports through toasts.
func (h *Handler) HandleToasts(c echo.Context) error {
	sess := middleware.GetSession(c)
	if sess == nil {
		return httpserver.RespondErrorWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Session required")
	}
	lang := middleware.GetLanguage(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		return nil // Upgrade already sent an error response
	}

	store := h.stores.Get(sess.ID)
	client := ws.NewClient(
		h.hub,
		conn,
		sess.ID,
		ws.WithClientConfig(h.clientCfg),
		ws.WithClientLogger(h.logger),
		ws.WithDismissHandler(store.Dismiss),
	)

	h.hub.Register(client)
	h.broadcaster.Attach(client, store, func(st toast.State) ([]byte, error) {
		return h.render(st, lang)
	})

	h.logger.Debug("toast stream opened",
		slog.String("session_id", sess.ID),
		slog.String("remote_ip", c.RealIP()),
	)

	go client.WritePump()
	go client.ReadPump()

	return nil
}

// RegisterRoutes registers the stream endpoint.
func (h *Handler) RegisterRoutes(r *httpserver.Router) {
	r.Public().GET(StreamPath, h.HandleToasts)
}
