package httphandler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/i18n"
	"github.com/instwave/digest-web/internal/infrastructure/httpserver"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/internal/toast"
)

// ToastJSON is the JSON form of a toast.
type ToastJSON struct {
	ID          string      `json:"id"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Action      *toast.Link `json:"action,omitempty"`
	DurationMS  int64       `json:"duration_ms,omitempty"`
	Variant     string      `json:"variant"`
	Open        bool        `json:"open"`
}

// ToastsPartial renders the toast region.
func (h *Handler) ToastsPartial(c echo.Context) error {
	return c.Render(http.StatusOK, "toasts", h.pageData(c, "", nil))
}

// ToastState returns the caller's toasts as JSON, including dismissed ones
// that are waiting for removal.
func (h *Handler) ToastState(c echo.Context) error {
	sess := middleware.GetSession(c)
	out := []ToastJSON{}
	if store, ok := h.toasts.Lookup(sess.ID); ok {
		for _, t := range store.State().Toasts {
			out = append(out, ToastJSON{
				ID:          t.ID,
				Title:       t.Title,
				Description: t.Description,
				Action:      t.Action,
				DurationMS:  t.Duration.Milliseconds(),
				Variant:     string(t.Variant),
				Open:        t.Open,
			})
		}
	}
	return httpserver.RespondOK(c, map[string]any{"toasts": out})
}

// DismissToast hides one toast, or all of them when no id is given.
func (h *Handler) DismissToast(c echo.Context) error {
	sess := middleware.GetSession(c)
	if store, ok := h.toasts.Lookup(sess.ID); ok {
		store.Dismiss(c.Param("id"))
	}
	if middleware.IsHTMX(c) {
		return h.ToastsPartial(c)
	}
	return c.Redirect(http.StatusSeeOther, backPath(c))
}

// SwitchLanguage stores the chosen language and returns to the previous page.
func (h *Handler) SwitchLanguage(c echo.Context) error {
	if lang, ok := i18n.Parse(c.Param("code")); ok {
		i18n.SetCookie(c.Response(), lang)
		if sess := middleware.GetSession(c); sess != nil {
			sess.Lang = lang
			h.saveSession(c)
		}
	}
	return c.Redirect(http.StatusSeeOther, backPath(c))
}

// NotFound renders the 404 page.
func (h *Handler) NotFound(c echo.Context) error {
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return httpserver.RespondErrorWithCode(c, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
	return c.Render(http.StatusNotFound, "pages/not_found.html", h.pageData(c, "not_found", nil))
}

// backPath returns the local path of the Referer, or the root.
func backPath(c echo.Context) string {
	ref, err := url.Parse(c.Request().Referer())
	if err != nil || ref.Path == "" || !strings.HasPrefix(ref.Path, "/") {
		return PathRoot
	}
	if ref.Host != "" && ref.Host != c.Request().Host {
		return PathRoot
	}
	query := ref.Query()
	query.Del(i18n.LangParam)
	if len(query) > 0 {
		return ref.Path + "?" + query.Encode()
	}
	return ref.Path
}
