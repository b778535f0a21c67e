package websocket

import (
	"log/slog"
	"sync"

	"github.com/instwave/digest-web/internal/toast"
)

// StateSource publishes toast states to watchers.
// Declared on the consumer side per project guidelines.
type StateSource interface {
	// Watch calls l with the current state and then with every later one.
	Watch(l toast.Listener) func()
}

// RenderFunc turns a toast state into the frame sent to the browser.
type RenderFunc func(st toast.State) ([]byte, error)

// Broadcaster forwards toast state changes to WebSocket clients.
type Broadcaster struct {
	logger *slog.Logger

	mu       sync.Mutex
	attached int
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcasterLogger sets the logger for the broadcaster.
func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach sends the current state of source to client and keeps it updated
// until the client closes.
func (b *Broadcaster) Attach(client *Client, source StateSource, render RenderFunc) {
	push := func(st toast.State) {
		frame, err := render(st)
		if err != nil {
			b.logger.Error("failed to render toast frame",
				slog.String("session_id", client.SessionID()),
				slog.String("error", err.Error()),
			)
			return
		}
		client.Send(frame)
	}

	unsubscribe := source.Watch(push)

	b.mu.Lock()
	b.attached++
	b.mu.Unlock()

	client.OnClose(func() {
		unsubscribe()
		b.mu.Lock()
		b.attached--
		b.mu.Unlock()
	})
}

// Attached returns the number of clients currently receiving updates.
func (b *Broadcaster) Attached() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}
