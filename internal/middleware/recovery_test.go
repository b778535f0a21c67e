package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instwave/digest-web/internal/middleware"
)

func TestDefaultRecoveryConfig(t *testing.T) {
	config := middleware.DefaultRecoveryConfig()

	assert.NotNil(t, config.Logger)
	assert.Equal(t, middleware.DefaultStackSize, config.StackSize)
	assert.False(t, config.DisablePrintStack)
}

func TestRecovery_PagePanic(t *testing.T) {
	logger, buf := newBufferedLogger()
	e := echo.New()
	e.Use(middleware.Recovery(logger))
	e.GET("/dashboard", func(echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", rec.Body.String())

	entry := decodeLogLine(t, buf)
	assert.Equal(t, "panic recovered", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestRecovery_JSONPanic(t *testing.T) {
	logger, _ := newBufferedLogger()
	e := echo.New()
	e.Use(middleware.RecoveryWithConfig(middleware.RecoveryConfig{Logger: logger, DisablePrintStack: true}))
	e.GET("/toasts", func(echo.Context) error { panic(assert.AnError) })

	req := httptest.NewRequest(http.MethodGet, "/toasts", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestRecovery_NoPanic(t *testing.T) {
	e := echo.New()
	e.Use(middleware.Recovery(nil))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "fine") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())
}
