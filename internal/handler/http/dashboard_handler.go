package httphandler

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/forms"
	"github.com/instwave/digest-web/internal/infrastructure/backend"
	"github.com/instwave/digest-web/internal/middleware"
)

// Query parameters set by the backend after the Kakao OAuth round trip.
const (
	queryKakaoSuccess = "kakao_success"
	queryKakaoError   = "kakao_error"
)

// DashboardView is the data of the preferences page.
type DashboardView struct {
	Record *backend.Dashboard
	Error  string
}

// Dashboard renders the signed-in user's preferences.
func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	sess := middleware.GetSession(c)

	record, ok := h.auth.Check(ctx, sess)
	if !ok {
		h.saveSession(c)
		return middleware.Redirect(c, PathLogin)
	}

	if c.QueryParam(queryKakaoSuccess) != "" {
		h.notifySuccess(c, h.t(c, "kakao_connected_ok"))
	}
	if c.QueryParam(queryKakaoError) != "" {
		h.notifyError(c, h.t(c, "kakao_connect_failed"))
	}

	return h.render(c, "pages/dashboard.html", "dashboard_title", DashboardView{Record: record})
}

// UpdatePreferences validates and stores the preference form.
func (h *Handler) UpdatePreferences(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		values = url.Values{}
	}
	prefs, verr := forms.ParsePreferences(values)
	if verr == nil {
		verr = forms.ValidatePreferences(prefs, func(key string) string { return h.t(c, key) })
	}
	if verr != nil {
		h.notifyError(c, forms.Message(verr))
		return h.finish(c, PathDashboard)
	}

	done, ok := h.begin(c, opPreferences)
	if !ok {
		return h.finish(c, PathDashboard)
	}
	defer done()

	ctx := c.Request().Context()
	sess := middleware.GetSession(c)

	res := h.backend.UpdatePreferences(ctx, sess.Backend, prefs)
	sess.Backend = res.Cookies
	if !res.Success {
		h.notifyError(c, orDefault(res.Message, backend.MsgPreferencesFailed))
		return h.finish(c, PathDashboard)
	}

	// Refresh the session's user summary from the stored record.
	h.auth.Check(ctx, sess)
	h.notifySuccess(c, h.t(c, "preferences_updated"))
	return h.finish(c, PathDashboard)
}

// SendDigest asks the backend to deliver this week's digest now.
func (h *Handler) SendDigest(c echo.Context) error {
	done, ok := h.begin(c, opSendDigest)
	if !ok {
		return h.finish(c, PathDashboard)
	}
	defer done()

	sess := middleware.GetSession(c)
	res := h.backend.SendDigestNow(c.Request().Context(), sess.Backend)
	sess.Backend = res.Cookies
	if !res.Success {
		h.notifyError(c, orDefault(res.Message, backend.MsgSendDigestFailed))
		return h.finish(c, PathDashboard)
	}

	h.notifySuccess(c, h.t(c, "digest_sent"))
	return h.finish(c, PathDashboard)
}

// ConnectKakao sends the browser to the Kakao consent page.
func (h *Handler) ConnectKakao(c echo.Context) error {
	done, ok := h.begin(c, opKakao)
	if !ok {
		return c.Redirect(http.StatusSeeOther, PathDashboard)
	}
	defer done()

	sess := middleware.GetSession(c)
	res := h.backend.KakaoAuthURL(c.Request().Context(), sess.Backend)
	sess.Backend = res.Cookies
	h.saveSession(c)
	if !res.Success || res.AuthURL == "" {
		h.notifyError(c, orDefault(res.Message, backend.MsgKakaoAuthFailed))
		return middleware.Redirect(c, PathDashboard)
	}

	return middleware.Redirect(c, res.AuthURL)
}
