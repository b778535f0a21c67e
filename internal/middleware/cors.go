package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DefaultCORSMaxAge is the default max age for CORS preflight cache (24 hours in seconds).
const DefaultCORSMaxAge = 86400

// htmx request headers.
const (
	HeaderHXRequest    = "HX-Request"
	HeaderHXTarget     = "HX-Target"
	HeaderHXTrigger    = "HX-Trigger"
	HeaderHXCurrentURL = "HX-Current-URL"
)

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	// AllowOrigins lists origins that may call the server. Empty means same-origin only.
	AllowOrigins []string

	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	ExposeHeaders    []string

	// MaxAge is how long, in seconds, a preflight result may be cached.
	MaxAge int
}

// DefaultCORSConfig returns a CORSConfig for pages served with htmx.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestID,
			HeaderHXRequest,
			HeaderHXTarget,
			HeaderHXTrigger,
			HeaderHXCurrentURL,
		},
		AllowCredentials: true,
		ExposeHeaders:    []string{"HX-Redirect", "HX-Trigger", echo.HeaderXRequestID},
		MaxAge:           DefaultCORSMaxAge,
	}
}

// CORS returns a CORS middleware with the given configuration.
// Without allowed origins it is a no-op.
func CORS(config CORSConfig) echo.MiddlewareFunc {
	if len(config.AllowOrigins) == 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     config.AllowOrigins,
		AllowMethods:     config.AllowMethods,
		AllowHeaders:     config.AllowHeaders,
		AllowCredentials: config.AllowCredentials,
		ExposeHeaders:    config.ExposeHeaders,
		MaxAge:           config.MaxAge,
	})
}

// CORSWithOrigins returns a CORS middleware configured for specific origins.
func CORSWithOrigins(origins ...string) echo.MiddlewareFunc {
	config := DefaultCORSConfig()
	config.AllowOrigins = origins
	return CORS(config)
}
