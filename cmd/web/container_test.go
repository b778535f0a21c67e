package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instwave/digest-web/internal/config"
	"github.com/instwave/digest-web/internal/infrastructure/httpserver"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/internal/toast"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mockConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.App.Mode = config.AppModeMock
	return cfg
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()

	c, err := NewContainer(cfg, WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestContainerOption_WithLogger(t *testing.T) {
	logger := discardLogger()
	c := &Container{}

	WithLogger(logger)(c)

	assert.Same(t, logger, c.Logger)
}

func TestNewContainer_MockMode(t *testing.T) {
	c := newTestContainer(t, mockConfig())

	assert.Nil(t, c.Redis)
	assert.IsType(t, &middleware.MemoryRateLimitStore{}, c.RateLimitStore)
	assert.NotNil(t, c.Backend)
	assert.NotNil(t, c.Registry)
	assert.NotNil(t, c.Toasts)
	assert.NotNil(t, c.Translator)
	assert.NotNil(t, c.Sessions)
	assert.NotNil(t, c.Auth)
	assert.NotNil(t, c.Catalog)
	assert.NotEmpty(t, c.Activity.Entries())
	assert.NotNil(t, c.Hub)
	assert.NotNil(t, c.Broadcaster)
	assert.NotNil(t, c.TemplateRenderer)
	assert.NotNil(t, c.PageHandler)
	assert.NotNil(t, c.WSHandler)
}

func TestNewContainer_ToastStoresFollowConfig(t *testing.T) {
	cfg := mockConfig()
	cfg.Toast.Limit = 2
	c := newTestContainer(t, cfg)

	store := c.Toasts.Get("sess")
	store.Add(toast.Toast{Title: "one"})
	store.Add(toast.Toast{Title: "two"})
	store.Add(toast.Toast{Title: "three"})

	visible := store.State().Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "three", visible[0].Title)
	assert.Equal(t, 1, c.Toasts.Len())
}

func TestNewContainer_RealModeWithoutRedis(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	c, err := NewContainer(cfg, WithLogger(discardLogger()))

	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "redis")
}

func TestContainer_Close_NoResources(t *testing.T) {
	c := &Container{Logger: discardLogger()}

	assert.NoError(t, c.Close())
}

func TestContainer_IsReady(t *testing.T) {
	t.Run("no resources", func(t *testing.T) {
		c := &Container{Logger: discardLogger(), Config: mockConfig()}

		assert.False(t, c.IsReady(context.Background()))
	})

	t.Run("real mode without redis", func(t *testing.T) {
		c := &Container{Logger: discardLogger(), Config: config.DefaultConfig()}

		assert.False(t, c.IsReady(context.Background()))
	})

	t.Run("hub not started", func(t *testing.T) {
		c := newTestContainer(t, mockConfig())

		assert.False(t, c.IsReady(context.Background()))
	})

	t.Run("hub running", func(t *testing.T) {
		c := newTestContainer(t, mockConfig())
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		c.StartHub(ctx)

		assert.Eventually(t, func() bool { return c.IsReady(ctx) }, time.Second, 10*time.Millisecond)
	})
}

func TestContainer_GetHealthStatus(t *testing.T) {
	t.Run("mock mode", func(t *testing.T) {
		c := newTestContainer(t, mockConfig())
		c.Toasts.Get("sess")

		byName := make(map[string]httpserver.ComponentStatus)
		for _, s := range c.GetHealthStatus(context.Background()) {
			byName[s.Name] = s
		}

		require.Len(t, byName, 4)
		assert.Equal(t, httpserver.StatusHealthy, byName["redis"].Status)
		assert.Equal(t, "in-memory rate limit store", byName["redis"].Message)
		assert.Equal(t, httpserver.StatusHealthy, byName["backend"].Status)
		assert.Equal(t, httpserver.StatusUnhealthy, byName["websocket_hub"].Status)
		assert.Equal(t, "hub not running", byName["websocket_hub"].Message)
		assert.Equal(t, "1 active stores", byName["toasts"].Message)
	})

	t.Run("empty container", func(t *testing.T) {
		c := &Container{Logger: discardLogger(), Config: config.DefaultConfig()}

		for _, s := range c.GetHealthStatus(context.Background()) {
			assert.NotEqual(t, httpserver.StatusHealthy, s.Status, s.Name)
		}
	})
}

func TestContainer_StartSweeper(t *testing.T) {
	cfg := mockConfig()
	cfg.Toast.SweepPeriod = 10 * time.Millisecond
	cfg.Toast.RemoveDelay = 10 * time.Millisecond
	c := newTestContainer(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c.Toasts.Get("idle")
	c.StartSweeper(ctx)

	assert.Eventually(t, func() bool { return c.Toasts.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil))

	check := originChecker([]string{"https://digest.example.com/ "})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin header", "", true},
		{"allowed origin", "https://digest.example.com", true},
		{"allowed origin any case", "HTTPS://Digest.Example.com", true},
		{"same host", "http://example.com", true},
		{"foreign origin", "https://evil.example.net", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/ws/toasts", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(req))
		})
	}

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/ws/toasts", nil)
		req.Header.Set("Origin", "https://anywhere.example.org")
		assert.True(t, originChecker([]string{"*"})(req))
	})
}
