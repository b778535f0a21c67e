package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/instwave/digest-web/internal/catalog"
	"github.com/instwave/digest-web/internal/config"
	httphandler "github.com/instwave/digest-web/internal/handler/http"
	wshandler "github.com/instwave/digest-web/internal/handler/websocket"
	"github.com/instwave/digest-web/internal/i18n"
	"github.com/instwave/digest-web/internal/infrastructure/backend"
	"github.com/instwave/digest-web/internal/infrastructure/httpserver"
	"github.com/instwave/digest-web/internal/infrastructure/metrics"
	"github.com/instwave/digest-web/internal/infrastructure/websocket"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/internal/session"
	"github.com/instwave/digest-web/internal/toast"
	"github.com/instwave/digest-web/web"
)

// Container timeouts.
const (
	redisPingTimeout = 5 * time.Second

	// rateLimitPrunePeriod is how often in-memory rate limit counters are pruned.
	rateLimitPrunePeriod = time.Minute
)

// Container holds every dependency of the web front-end.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	Redis          *redis.Client
	RateLimitStore middleware.RateLimitStore
	Registry       *prometheus.Registry
	BackendMetrics *metrics.BackendMetrics
	ToastMetrics   *metrics.ToastMetrics
	Backend        *backend.Client

	// Front-end state
	Toasts     *toast.Directory
	Translator *i18n.Translator
	Sessions   *session.Codec
	Auth       *session.Provider
	Catalog    *catalog.Catalog
	Activity   *catalog.ActivityLog

	// Live toast stream
	Hub         *websocket.Hub
	Broadcaster *websocket.Broadcaster

	// HTTP
	TemplateRenderer *httphandler.TemplateRenderer
	PageHandler      *httphandler.Handler
	WSHandler        *wshandler.Handler
}

// ContainerOption configures the container.
type ContainerOption func(*Container)

// WithLogger sets the logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer wires every component from cfg.
// In real mode it fails when Redis cannot be reached.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logWiringMode()

	if err := c.setupInfrastructure(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup infrastructure: %w", err)
	}

	if err := c.setupFrontend(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup front-end state: %w", err)
	}

	c.setupHub()
	c.setupBroadcaster()

	if err := c.setupTemplateRenderer(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup template renderer: %w", err)
	}

	c.setupHTTPHandlers()

	if err := c.validateWiring(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("wiring validation failed: %w", err)
	}

	return c, nil
}

func (c *Container) logWiringMode() {
	mode := c.Config.App.Mode
	if mode == "" {
		mode = config.AppModeReal
	}

	if c.Config.App.IsMockMode() {
		c.Logger.Warn("container starting in MOCK mode",
			slog.String("mode", string(mode)),
			slog.Bool("is_development", c.Config.IsDevelopment()),
			slog.Bool("is_production", c.Config.IsProduction()),
		)
	} else {
		c.Logger.Info("container starting in REAL mode",
			slog.String("mode", string(mode)),
			slog.Bool("is_development", c.Config.IsDevelopment()),
			slog.Bool("is_production", c.Config.IsProduction()),
		)
	}
}

func (c *Container) validateWiring() error {
	var errs []error

	if c.Backend == nil {
		errs = append(errs, errors.New("backend client not initialized"))
	}
	if c.RateLimitStore == nil && c.Config.RateLimit.Enabled {
		errs = append(errs, errors.New("rate limit store not initialized"))
	}
	if c.Config.App.IsRealMode() && c.Redis == nil {
		errs = append(errs, errors.New("redis client required in real mode"))
	}
	if c.Toasts == nil || c.Sessions == nil || c.Auth == nil || c.Translator == nil {
		errs = append(errs, errors.New("front-end state not initialized"))
	}
	if c.PageHandler == nil {
		errs = append(errs, errors.New("page handler not initialized"))
	}
	if c.WSHandler == nil {
		errs = append(errs, errors.New("websocket handler not initialized"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// setupInfrastructure connects Redis and builds the metrics registry and the backend client.
func (c *Container) setupInfrastructure() error {
	ctx := context.Background()

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.BackendMetrics = metrics.NewBackendMetrics(c.Registry)
	c.ToastMetrics = metrics.NewToastMetrics(c.Registry)

	if c.Config.App.IsRealMode() {
		if err := c.setupRedis(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		c.RateLimitStore = middleware.NewRedisRateLimitStore(middleware.NewGoRedisClient(c.Redis), "")
	} else {
		c.RateLimitStore = middleware.NewMemoryRateLimitStore()
		c.Logger.Debug("using in-memory rate limit store")
	}

	c.Backend = backend.NewClient(backend.Config{
		BaseURL: c.Config.Backend.BaseURL,
		Timeout: c.Config.Backend.Timeout,
		Logger:  c.Logger,
		Metrics: c.BackendMetrics,
	})

	c.Logger.InfoContext(ctx, "backend client initialized",
		slog.String("base_url", c.Config.Backend.BaseURL),
		slog.Duration("timeout", c.Config.Backend.Timeout),
	)

	return nil
}

func (c *Container) setupRedis(ctx context.Context) error {
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if pingErr := c.Redis.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to Redis",
		slog.String("addr", c.Config.Redis.Addr),
	)

	return nil
}

// setupFrontend builds the toast directory, translations, sessions and sample data.
func (c *Container) setupFrontend() error {
	c.Toasts = toast.NewDirectory(
		toast.WithDirectoryLogger(c.Logger),
		toast.WithDirectoryObserver(c.ToastMetrics),
		toast.WithStoreOptions(
			toast.WithLimit(c.Config.Toast.Limit),
			toast.WithRemoveDelay(c.Config.Toast.RemoveDelay),
		),
	)

	translator, err := i18n.New(c.Config.App.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	c.Translator = translator

	c.Sessions = session.NewCodec(session.CodecConfig{
		Secret:     c.Config.Session.Secret,
		TTL:        c.Config.Session.TTL,
		CookieName: c.Config.Session.CookieName,
		Secure:     c.Config.Session.Secure,
		Logger:     c.Logger,
	})
	c.Auth = session.NewProvider(c.Backend, c.Logger)

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	c.Catalog = cat
	c.Activity = catalog.NewActivityLog(cat.SystemLogs(), catalog.DefaultActivityLimit)

	c.Logger.Debug("front-end state initialized",
		slog.Int("toast_limit", c.Config.Toast.Limit),
		slog.Duration("toast_remove_delay", c.Config.Toast.RemoveDelay),
		slog.String("default_language", c.Config.App.DefaultLanguage),
	)

	return nil
}

// setupHub initializes the WebSocket hub.
func (c *Container) setupHub() {
	c.Hub = websocket.NewHub(
		websocket.WithHubLogger(c.Logger),
		websocket.WithConnectionGauge(func(n int) {
			c.ToastMetrics.Streams.Set(float64(n))
		}),
	)

	c.Logger.Debug("websocket hub initialized")
}

func (c *Container) setupBroadcaster() {
	c.Broadcaster = websocket.NewBroadcaster(
		websocket.WithBroadcasterLogger(c.Logger),
	)
}

func (c *Container) setupTemplateRenderer() error {
	devMode := c.Config.Server.DevMode || c.Config.IsDevelopment()

	renderer, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{
		FS:      web.TemplatesFS,
		Logger:  c.Logger,
		DevMode: devMode,
	})
	if err != nil {
		return fmt.Errorf("failed to create template renderer: %w", err)
	}

	c.TemplateRenderer = renderer

	c.Logger.Debug("template renderer initialized",
		slog.Bool("dev_mode", devMode),
	)

	return nil
}

func (c *Container) setupHTTPHandlers() {
	c.PageHandler = httphandler.NewHandler(httphandler.Config{
		Renderer:   c.TemplateRenderer,
		Logger:     c.Logger,
		Backend:    c.Backend,
		Auth:       c.Auth,
		Sessions:   c.Sessions,
		Toasts:     c.Toasts,
		Streams:    c.Hub,
		Translator: c.Translator,
		Catalog:    c.Catalog,
		Activity:   c.Activity,
		AppName:    c.Config.App.Name,

		ToastDuration: c.Config.Toast.Duration,
	})

	clientCfg := websocket.DefaultClientConfig()
	clientCfg.ReadBufferSize = c.Config.WebSocket.ReadBufferSize
	clientCfg.WriteBufferSize = c.Config.WebSocket.WriteBufferSize
	clientCfg.PingInterval = c.Config.WebSocket.PingInterval
	clientCfg.PongWait = c.Config.WebSocket.PongTimeout

	c.WSHandler = wshandler.NewHandler(
		c.Hub,
		c.Broadcaster,
		c.Toasts,
		c.PageHandler.RenderToastFrame,
		wshandler.HandlerConfig{
			ReadBufferSize:  c.Config.WebSocket.ReadBufferSize,
			WriteBufferSize: c.Config.WebSocket.WriteBufferSize,
			CheckOrigin:     originChecker(c.Config.Server.AllowOrigins),
			Logger:          c.Logger,
			ClientConfig:    clientCfg,
		},
	)
}

// originChecker admits same-origin upgrades and those from allowed.
// It returns nil for an empty list, leaving the same-origin check of the upgrader in place.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(allowed))
	for _, o := range allowed {
		normalized = append(normalized, strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/"))
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(normalized, "*") || slices.Contains(normalized, strings.ToLower(origin)) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// Close releases every resource held by the container.
func (c *Container) Close() error {
	c.Logger.Info("closing container resources...")

	var errs []error

	if c.Hub != nil {
		c.Hub.Stop()
		c.Logger.Debug("websocket hub stopped")
	}

	if c.Toasts != nil {
		c.Toasts.Close()
		c.Logger.Debug("toast stores closed")
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		} else {
			c.Logger.Debug("redis connection closed")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("all container resources closed")
	return nil
}

// StartHub starts the WebSocket hub.
// This should be called before the HTTP server starts accepting requests.
func (c *Container) StartHub(ctx context.Context) {
	go c.Hub.Run(ctx)
	c.Logger.InfoContext(ctx, "websocket hub started")
}

// StartSweeper drops idle toast stores and, in mock mode, expired rate limit
// counters until ctx is done.
func (c *Container) StartSweeper(ctx context.Context) {
	go c.Toasts.Run(ctx, c.Config.Toast.SweepPeriod, c.Config.Toast.RemoveDelay)

	if mem, ok := c.RateLimitStore.(*middleware.MemoryRateLimitStore); ok {
		go pruneLoop(ctx, mem, rateLimitPrunePeriod)
	}

	c.Logger.InfoContext(ctx, "toast sweeper started",
		slog.Duration("period", c.Config.Toast.SweepPeriod),
	)
}

func pruneLoop(ctx context.Context, store *middleware.MemoryRateLimitStore, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Prune()
		}
	}
}

// IsReady implements httpserver.HealthChecker.
func (c *Container) IsReady(ctx context.Context) bool {
	if c.Config != nil && c.Config.App.IsRealMode() {
		if c.Redis == nil {
			return false
		}
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			c.Logger.WarnContext(ctx, "redis health check failed", slog.String("error", err.Error()))
			return false
		}
	}

	if c.Hub == nil || !c.Hub.IsRunning() {
		c.Logger.WarnContext(ctx, "websocket hub is not running")
		return false
	}

	return c.Backend != nil && c.TemplateRenderer != nil
}

// GetHealthStatus implements httpserver.HealthChecker.
func (c *Container) GetHealthStatus(ctx context.Context) []httpserver.ComponentStatus {
	var statuses []httpserver.ComponentStatus

	// Redis status; mock mode keeps counters in memory.
	redisStatus := httpserver.ComponentStatus{Name: "redis", Status: httpserver.StatusHealthy}
	switch {
	case c.Config != nil && c.Config.App.IsMockMode():
		redisStatus.Message = "in-memory rate limit store"
	case c.Redis == nil:
		redisStatus.Status = httpserver.StatusUnhealthy
		redisStatus.Message = "client not initialized"
	default:
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			redisStatus.Status = httpserver.StatusUnhealthy
			redisStatus.Message = err.Error()
		}
	}
	statuses = append(statuses, redisStatus)

	backendStatus := httpserver.ComponentStatus{Name: "backend", Status: httpserver.StatusHealthy}
	if c.Backend == nil {
		backendStatus.Status = httpserver.StatusUnhealthy
		backendStatus.Message = "client not initialized"
	}
	statuses = append(statuses, backendStatus)

	hubStatus := httpserver.ComponentStatus{Name: "websocket_hub", Status: httpserver.StatusHealthy}
	if c.Hub == nil {
		hubStatus.Status = httpserver.StatusUnhealthy
		hubStatus.Message = "hub not initialized"
	} else if !c.Hub.IsRunning() {
		hubStatus.Status = httpserver.StatusUnhealthy
		hubStatus.Message = "hub not running"
	}
	statuses = append(statuses, hubStatus)

	toastStatus := httpserver.ComponentStatus{Name: "toasts", Status: httpserver.StatusHealthy}
	if c.Toasts == nil {
		toastStatus.Status = httpserver.StatusDegraded
		toastStatus.Message = "toast directory not initialized"
	} else {
		toastStatus.Message = fmt.Sprintf("%d active stores", c.Toasts.Len())
	}
	statuses = append(statuses, toastStatus)

	return statuses
}

var _ httpserver.HealthChecker = (*Container)(nil)
