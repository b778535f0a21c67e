package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/i18n"
	"github.com/instwave/digest-web/internal/session"
)

// Context keys for request-scoped state.
type contextKey string

const (
	// ContextKeySession is the context key for the *session.Session.
	ContextKeySession contextKey = "session"

	// ContextKeyLanguage is the context key for the resolved UI language.
	ContextKeyLanguage contextKey = "lang"
)

// Guard errors.
var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrForbidden   = errors.New("forbidden")
)

// SessionLoader reads the session cookie.
type SessionLoader interface {
	Load(r *http.Request) *session.Session
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger *slog.Logger
	Codec  SessionLoader
}

// Sessions loads the session cookie into the context. A request without a
// valid cookie gets a fresh anonymous session; it is written back only when a
// handler saves it.
func Sessions(config SessionConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(string(ContextKeySession), config.Codec.Load(c.Request()))
			return next(c)
		}
	}
}

// GetSession returns the session loaded by Sessions, or nil.
func GetSession(c echo.Context) *session.Session {
	if s, ok := c.Get(string(ContextKeySession)).(*session.Session); ok {
		return s
	}
	return nil
}

// LanguageResolver picks the UI language for a request.
// preferred is the language stored with the session, if any.
type LanguageResolver interface {
	Resolve(r *http.Request, preferred string) (string, bool)
}

// Language resolves the UI language and persists an explicit ?lang= choice
// in the language cookie and the session.
func Language(resolver LanguageResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := GetSession(c)

			var preferred string
			if s != nil {
				preferred = s.Lang
			}

			lang, persist := resolver.Resolve(c.Request(), preferred)
			if persist {
				i18n.SetCookie(c.Response(), lang)
				if s != nil {
					s.Lang = lang
				}
			}
			c.Set(string(ContextKeyLanguage), lang)
			return next(c)
		}
	}
}

// GetLanguage returns the language resolved by Language.
func GetLanguage(c echo.Context) string {
	if lang, ok := c.Get(string(ContextKeyLanguage)).(string); ok && lang != "" {
		return lang
	}
	return i18n.English
}

// RequireLogin sends visitors without a signed-in session to loginPath.
// HTMX requests get an HX-Redirect header instead of a 303.
func RequireLogin(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !GetSession(c).LoggedIn() {
				return Redirect(c, loginPath)
			}
			return next(c)
		}
	}
}

// RequireAdmin rejects signed-in users that isAdmin does not accept.
func RequireAdmin(isAdmin func(email string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := GetSession(c)
			if !s.LoggedIn() {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrNotSignedIn.Error())
			}
			if !isAdmin(s.User.Email) {
				return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
			}
			return next(c)
		}
	}
}

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

// Redirect navigates the browser to path, using HX-Redirect for htmx requests.
func Redirect(c echo.Context, path string) error {
	if IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", path)
		return c.NoContent(http.StatusOK)
	}
	return c.Redirect(http.StatusSeeOther, path)
}
