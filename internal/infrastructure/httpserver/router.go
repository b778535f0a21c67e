package httpserver

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/instwave/digest-web/internal/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger *slog.Logger

	// SessionMiddleware loads the session cookie for every request.
	SessionMiddleware echo.MiddlewareFunc

	// LanguageMiddleware resolves the UI language; it runs after SessionMiddleware.
	LanguageMiddleware echo.MiddlewareFunc

	// RateLimitMiddleware throttles form submissions.
	RateLimitMiddleware echo.MiddlewareFunc

	// LoginPath is where RequireLogin sends anonymous visitors.
	LoginPath string

	// IsAdmin decides access to admin groups. Nil admits every signed-in user.
	IsAdmin func(email string) bool

	CORSConfig     middleware.CORSConfig
	LoggingConfig  middleware.LoggingConfig
	RecoveryConfig middleware.RecoveryConfig
}

// DefaultRouterConfig returns a RouterConfig with sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Logger:         slog.Default(),
		LoginPath:      "/login",
		CORSConfig:     middleware.DefaultCORSConfig(),
		LoggingConfig:  middleware.DefaultLoggingConfig(),
		RecoveryConfig: middleware.DefaultRecoveryConfig(),
	}
}

// Router manages route groups and middleware chains.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
	logger *slog.Logger
}

// NewRouter applies the global middleware chain to e.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LoginPath == "" {
		config.LoginPath = "/login"
	}
	if config.IsAdmin == nil {
		config.IsAdmin = func(string) bool { return true }
	}

	r := &Router{echo: e, config: config, logger: config.Logger}
	r.setupGlobalMiddleware()
	return r
}

func (r *Router) setupGlobalMiddleware() {
	// Recovery first so it sees panics from every later middleware.
	r.echo.Use(middleware.RecoveryWithConfig(r.config.RecoveryConfig))
	r.echo.Use(middleware.CORS(r.config.CORSConfig))
	r.echo.Use(middleware.Logging(r.config.LoggingConfig))

	if r.config.SessionMiddleware != nil {
		r.echo.Use(r.config.SessionMiddleware)
	} else {
		r.logger.Warn("no session middleware configured, pages run without sessions")
	}
	if r.config.LanguageMiddleware != nil {
		r.echo.Use(r.config.LanguageMiddleware)
	}
	if r.config.RateLimitMiddleware != nil {
		r.echo.Use(r.config.RateLimitMiddleware)
	}
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}

// Public returns the root group; routes here need no sign-in.
func (r *Router) Public() *echo.Group {
	return r.echo.Group("")
}

// Member returns a group under prefix that requires a signed-in session.
func (r *Router) Member(prefix string) *echo.Group {
	return r.echo.Group(prefix, middleware.RequireLogin(r.config.LoginPath))
}

// Admin returns a group under prefix restricted to signed-in administrators.
func (r *Router) Admin(prefix string) *echo.Group {
	return r.echo.Group(prefix,
		middleware.RequireLogin(r.config.LoginPath),
		middleware.RequireAdmin(r.config.IsAdmin),
	)
}

// RegisterStatic serves fsys under /static.
func (r *Router) RegisterStatic(fsys fs.FS) {
	r.echo.StaticFS("/static", fsys)
}

// RegisterMetricsEndpoint exposes gatherer on /metrics.
func (r *Router) RegisterMetricsEndpoint(gatherer prometheus.Gatherer) {
	var h http.Handler
	if gatherer == nil {
		h = promhttp.Handler()
	} else {
		h = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	r.echo.GET("/metrics", echo.WrapHandler(h))
}

// RouteRegistrar defines the interface for registering routes.
type RouteRegistrar interface {
	RegisterRoutes(r *Router)
}

// RegisterAll registers all route registrars with the router.
func (r *Router) RegisterAll(registrars ...RouteRegistrar) {
	for _, registrar := range registrars {
		registrar.RegisterRoutes(r)
	}
}

// PrintRoutes logs all registered routes at debug level.
func (r *Router) PrintRoutes() {
	for _, route := range r.echo.Routes() {
		r.logger.Debug("registered route",
			slog.String("method", route.Method),
			slog.String("path", route.Path),
		)
	}
}
