package httphandler

import (
	"log/slog"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/forms"
	"github.com/instwave/digest-web/internal/infrastructure/backend"
	"github.com/instwave/digest-web/internal/middleware"
)

// Pending operation names.
const (
	opLogin         = "login"
	opRegister      = "register"
	opLogout        = "logout"
	opPreferences   = "preferences"
	opSendDigest    = "send_digest"
	opKakao         = "kakao"
	opSubscribe     = "subscribe"
	opAdminDigest   = "admin_digest"
	opAdminRefresh  = "admin_refresh"
	opAdminNotifRef = "admin_notifications"
)

// LoginView is the data of the login page.
type LoginView struct {
	Email string
	Error string
}

// RegisterView is the data of the registration page.
type RegisterView struct {
	Name     string
	Email    string
	Topics   []backend.Topic
	Selected []int
	Error    string
}

// Root sends signed-in users to the dashboard and everyone else to login.
func (h *Handler) Root(c echo.Context) error {
	sess := middleware.GetSession(c)
	if !sess.LoggedIn() {
		return middleware.Redirect(c, PathLogin)
	}

	_, ok := h.auth.Check(c.Request().Context(), sess)
	h.saveSession(c)
	if !ok {
		return middleware.Redirect(c, PathLogin)
	}
	return middleware.Redirect(c, PathDashboard)
}

// LoginPage renders the login form.
func (h *Handler) LoginPage(c echo.Context) error {
	if middleware.GetSession(c).LoggedIn() {
		return middleware.Redirect(c, PathDashboard)
	}
	return h.render(c, "pages/login.html", "login_title", LoginView{})
}

// Login signs the session in.
func (h *Handler) Login(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		values = url.Values{}
	}
	form := forms.ParseLogin(values)
	view := LoginView{Email: form.Email}

	if verr := form.Validate(); verr != nil {
		view.Error = forms.Message(verr)
		return h.render(c, "pages/login.html", "login_title", view)
	}

	done, ok := h.begin(c, opLogin)
	if !ok {
		return h.render(c, "pages/login.html", "login_title", view)
	}
	defer done()

	sess := middleware.GetSession(c)
	res := h.auth.Login(c.Request().Context(), sess, form.Email, form.Password)
	h.saveSession(c)
	if !res.Success {
		view.Error = res.Message
		return h.render(c, "pages/login.html", "login_title", view)
	}

	return middleware.Redirect(c, PathDashboard)
}

// RegisterPage renders the registration form with the backend's topics.
func (h *Handler) RegisterPage(c echo.Context) error {
	if middleware.GetSession(c).LoggedIn() {
		return middleware.Redirect(c, PathDashboard)
	}
	view := RegisterView{}
	h.loadTopics(c, &view)
	return h.render(c, "pages/register.html", "register_title", view)
}

func (h *Handler) loadTopics(c echo.Context, view *RegisterView) {
	sess := middleware.GetSession(c)
	res := h.backend.Topics(c.Request().Context(), sess.Backend)
	sess.Backend = res.Cookies
	if !res.Success {
		h.logger.WarnContext(c.Request().Context(), "topics unavailable", slog.String("message", res.Message))
		if view.Error == "" {
			view.Error = res.Message
		}
		return
	}
	view.Topics = res.Topics
}

// Register creates an account and signs it in.
func (h *Handler) Register(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		values = url.Values{}
	}
	form := forms.ParseRegister(values)
	view := RegisterView{Name: form.Name, Email: form.Email, Selected: form.Topics}

	if verr := form.Validate(func(key string) string { return h.t(c, key) }); verr != nil {
		view.Error = forms.Message(verr)
		h.loadTopics(c, &view)
		return h.render(c, "pages/register.html", "register_title", view)
	}

	done, ok := h.begin(c, opRegister)
	if !ok {
		h.loadTopics(c, &view)
		return h.render(c, "pages/register.html", "register_title", view)
	}
	defer done()

	sess := middleware.GetSession(c)
	res := h.auth.Register(c.Request().Context(), sess, form.Name, form.Email, form.Password, form.Topics)
	h.saveSession(c)
	if !res.Success {
		view.Error = res.Message
		h.loadTopics(c, &view)
		return h.render(c, "pages/register.html", "register_title", view)
	}

	return middleware.Redirect(c, PathDashboard)
}

// Logout ends the session, its toast store and its live streams.
func (h *Handler) Logout(c echo.Context) error {
	sess := middleware.GetSession(c)
	if !sess.LoggedIn() {
		h.sessions.Clear(c.Response())
		return middleware.Redirect(c, PathLogin)
	}

	done, ok := h.begin(c, opLogout)
	if !ok {
		return h.finish(c, PathDashboard)
	}
	defer done()

	res := h.auth.Logout(c.Request().Context(), sess)
	if !res.Success {
		h.notifyError(c, orDefault(res.Message, backend.MsgLogoutFailed))
		return h.finish(c, PathDashboard)
	}

	h.streams.CloseSession(sess.ID)
	h.toasts.Drop(sess.ID)
	h.sessions.Clear(c.Response())
	h.logger.InfoContext(c.Request().Context(), "user logged out", slog.String("session_id", sess.ID))

	return middleware.Redirect(c, PathLogin)
}
