package websocket_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/instwave/digest-web/internal/infrastructure/websocket"
)

func TestNewHub(t *testing.T) {
	hub := ws.NewHub()

	assert.NotNil(t, hub)
	assert.False(t, hub.IsRunning())
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_Run(t *testing.T) {
	t.Run("stops with context cancellation", func(t *testing.T) {
		hub := ws.NewHub()
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			hub.Run(ctx)
			close(done)
		}()
		require.Eventually(t, hub.IsRunning, time.Second, 5*time.Millisecond)

		cancel()

		select {
		case <-done:
			assert.False(t, hub.IsRunning())
		case <-time.After(time.Second):
			t.Fatal("hub did not stop in time")
		}
	})

	t.Run("stops with Stop method", func(t *testing.T) {
		hub := ws.NewHub()

		done := make(chan struct{})
		go func() {
			hub.Run(context.Background())
			close(done)
		}()
		require.Eventually(t, hub.IsRunning, time.Second, 5*time.Millisecond)

		hub.Stop()

		select {
		case <-done:
			assert.False(t, hub.IsRunning())
		case <-time.After(time.Second):
			t.Fatal("hub did not stop in time")
		}
	})

	t.Run("stop on idle hub is a no-op", func(t *testing.T) {
		hub := ws.NewHub()
		hub.Stop()
		assert.False(t, hub.IsRunning())
	})
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	var gauge atomic.Int64
	hub := runHub(t, ws.WithConnectionGauge(func(n int) { gauge.Store(int64(n)) }))

	server, _ := dialPair(t)
	client := ws.NewClient(hub, server, "session-1")

	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.SessionConnectionCount("session-1"))
	require.Eventually(t, func() bool { return gauge.Load() == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.SessionConnectionCount("session-1"))
	require.Eventually(t, func() bool { return gauge.Load() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, client.IsClosed())
}

func TestHub_CloseSessionOnlyClosesThatSession(t *testing.T) {
	hub := runHub(t)

	serverA, _ := dialPair(t)
	serverB, _ := dialPair(t)
	serverC, _ := dialPair(t)
	a := ws.NewClient(hub, serverA, "alice")
	b := ws.NewClient(hub, serverB, "alice")
	c := ws.NewClient(hub, serverC, "bob")
	hub.Register(a)
	hub.Register(b)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, hub.SessionConnectionCount("alice"))

	hub.CloseSession("alice")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.False(t, c.IsClosed())
	assert.Equal(t, 0, hub.SessionConnectionCount("alice"))
	assert.Equal(t, 1, hub.SessionConnectionCount("bob"))
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	require.Eventually(t, hub.IsRunning, time.Second, 5*time.Millisecond)

	server, _ := dialPair(t)
	client := ws.NewClient(hub, server, "session-1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.True(t, client.IsClosed())
	assert.Equal(t, 0, hub.ClientCount())

	// A stopped hub closes late registrations instead of blocking.
	lateServer, _ := dialPair(t)
	late := ws.NewClient(hub, lateServer, "session-2")
	hub.Register(late)
	assert.True(t, late.IsClosed())
}
