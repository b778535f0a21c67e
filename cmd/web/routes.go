package main

import (
	"github.com/labstack/echo/v4"

	httphandler "github.com/instwave/digest-web/internal/handler/http"
	"github.com/instwave/digest-web/internal/infrastructure/httpserver"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/web"
)

// SetupRoutes configures the middleware chain and every route on e.
func SetupRoutes(e *echo.Echo, c *Container) *httpserver.Router {
	e.Renderer = c.TemplateRenderer
	e.HTTPErrorHandler = httpserver.NewErrorHandler(c.Logger)

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = c.Config.Server.AllowOrigins

	logging := middleware.DefaultLoggingConfig()
	logging.Logger = c.Logger

	recovery := middleware.DefaultRecoveryConfig()
	recovery.Logger = c.Logger

	routerConfig := httpserver.RouterConfig{
		Logger: c.Logger,
		SessionMiddleware: middleware.Sessions(middleware.SessionConfig{
			Logger: c.Logger,
			Codec:  c.Sessions,
		}),
		LanguageMiddleware: middleware.Language(c.Translator),
		LoginPath:          httphandler.PathLogin,
		IsAdmin:            c.Config.Admin.IsAdmin,
		CORSConfig:         cors,
		LoggingConfig:      logging,
		RecoveryConfig:     recovery,
	}

	if c.Config.RateLimit.Enabled {
		limit := middleware.DefaultRateLimitConfig()
		limit.Logger = c.Logger
		limit.Store = c.RateLimitStore
		limit.Limit = c.Config.RateLimit.Requests
		limit.Window = c.Config.RateLimit.Window
		limit.ExceedHandler = c.PageHandler.RateLimited
		routerConfig.RateLimitMiddleware = middleware.RateLimit(limit)
	}

	router := httpserver.NewRouter(e, routerConfig)

	router.RegisterStatic(web.Static())
	router.RegisterMetricsEndpoint(c.Registry)

	// Container implements httpserver.HealthChecker.
	router.RegisterHealthEndpoints(c)

	router.RegisterAll(c.WSHandler)

	c.PageHandler.RegisterRoutes(e,
		router.Public(),
		router.Member(httphandler.PathDashboard),
		router.Admin(httphandler.PathAdmin),
	)

	if c.Config.IsDevelopment() {
		router.PrintRoutes()
	}

	return router
}
