package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instwave/digest-web/internal/i18n"
	"github.com/instwave/digest-web/internal/infrastructure/backend"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/internal/session"
)

func newCodec() *session.Codec {
	return session.NewCodec(session.CodecConfig{
		Secret:     "test-secret",
		TTL:        time.Hour,
		CookieName: "sess",
	})
}

func signedInCookie(t *testing.T, codec *session.Codec, email string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, codec.Save(rec, &session.Session{
		ID:   "s1",
		User: &backend.User{ID: 7, Email: email, Name: "Test"},
	}))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSessions_LoadsAnonymousSession(t *testing.T) {
	e := echo.New()
	e.Use(middleware.Sessions(middleware.SessionConfig{Codec: newCodec()}))

	var got *session.Session
	e.GET("/", func(c echo.Context) error {
		got = middleware.GetSession(c)
		return c.NoContent(http.StatusOK)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.LoggedIn())
}

func TestRequireLogin(t *testing.T) {
	codec := newCodec()
	e := echo.New()
	e.Use(middleware.Sessions(middleware.SessionConfig{Codec: codec}))
	e.GET("/dashboard", func(c echo.Context) error {
		return c.String(http.StatusOK, middleware.GetSession(c).User.Email)
	}, middleware.RequireLogin("/login"))

	t.Run("anonymous redirected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
	})

	t.Run("htmx gets HX-Redirect", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
	})

	t.Run("signed in passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(signedInCookie(t, codec, "user@example.com"))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user@example.com", rec.Body.String())
	})
}

func TestRequireAdmin(t *testing.T) {
	codec := newCodec()
	e := echo.New()
	e.Use(middleware.Sessions(middleware.SessionConfig{Codec: codec}))
	isAdmin := func(email string) bool { return email == "ops@example.com" }
	e.GET("/admin", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RequireAdmin(isAdmin))

	tests := []struct {
		name   string
		email  string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"regular user", "user@example.com", http.StatusForbidden},
		{"admin", "ops@example.com", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.email != "" {
				req.AddCookie(signedInCookie(t, codec, tt.email))
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestLanguage(t *testing.T) {
	translator, err := i18n.New(i18n.English)
	require.NoError(t, err)

	codec := newCodec()
	e := echo.New()
	e.Use(middleware.Sessions(middleware.SessionConfig{Codec: codec}))
	e.Use(middleware.Language(translator))

	var sessionLang string
	e.GET("/", func(c echo.Context) error {
		sessionLang = middleware.GetSession(c).Lang
		return c.String(http.StatusOK, middleware.GetLanguage(c))
	})

	t.Run("query persists", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lang=ko", nil))

		assert.Equal(t, i18n.Korean, rec.Body.String())
		assert.Equal(t, i18n.Korean, sessionLang)
		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies)
		assert.Equal(t, i18n.LangCookieName, cookies[0].Name)
		assert.Equal(t, i18n.Korean, cookies[0].Value)
	})

	t.Run("session language is used without a cookie", func(t *testing.T) {
		saved := httptest.NewRecorder()
		require.NoError(t, codec.Save(saved, &session.Session{ID: "s2", Lang: i18n.Korean}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", "en-US")
		req.AddCookie(saved.Result().Cookies()[0])

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, i18n.Korean, rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("header language is not stored in the session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", "ko-KR")

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, i18n.Korean, rec.Body.String())
		assert.Empty(t, sessionLang)
	})

	t.Run("default without preference", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, i18n.English, rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	})
}

func TestGetLanguage_Default(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, i18n.English, middleware.GetLanguage(c))
	assert.Nil(t, middleware.GetSession(c))
}
