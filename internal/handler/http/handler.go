// Package httphandler renders the pages of the digest front-end and handles
// their form submissions.
package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/catalog"
	"github.com/instwave/digest-web/internal/infrastructure/backend"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/internal/session"
	"github.com/instwave/digest-web/internal/toast"
)

// Page paths.
const (
	PathRoot      = "/"
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathLogout    = "/logout"
	PathDashboard = "/dashboard"
	PathSubscribe = "/subscribe"
	PathDigest    = "/digest"
	PathAdmin     = "/admin"
)

// Backend is the subset of the backend client the pages call directly.
// Declared on the consumer side per project guidelines.
type Backend interface {
	Topics(ctx context.Context, cookies backend.Cookies) backend.TopicsResult
	UpdatePreferences(ctx context.Context, cookies backend.Cookies, prefs backend.Preferences) backend.ActionResult
	SendDigestNow(ctx context.Context, cookies backend.Cookies) backend.ActionResult
	KakaoAuthURL(ctx context.Context, cookies backend.Cookies) backend.KakaoAuthResult
	Submit(ctx context.Context, cookies backend.Cookies, sub backend.Subscription) backend.SubmitResult
}

// AuthProvider signs sessions in and out.
type AuthProvider interface {
	Login(ctx context.Context, s *session.Session, email, password string) session.Result
	Register(ctx context.Context, s *session.Session, name, email, password string, topics []int) session.Result
	Logout(ctx context.Context, s *session.Session) session.Result
	Check(ctx context.Context, s *session.Session) (*backend.Dashboard, bool)
}

// SessionWriter persists the session cookie.
type SessionWriter interface {
	Save(w http.ResponseWriter, s *session.Session) error
	Clear(w http.ResponseWriter)
}

// ToastDirectory hands out the toast store of a session.
type ToastDirectory interface {
	Get(key string) *toast.Store
	Lookup(key string) (*toast.Store, bool)
	Drop(key string)
}

// StreamCloser ends the live toast streams of a session.
type StreamCloser interface {
	CloseSession(sessionID string)
}

// Translator looks up UI strings.
type Translator interface {
	T(lang, key string) string
}

// Config wires the page handlers.
type Config struct {
	Renderer   *TemplateRenderer
	Logger     *slog.Logger
	Backend    Backend
	Auth       AuthProvider
	Sessions   SessionWriter
	Toasts     ToastDirectory
	Streams    StreamCloser
	Translator Translator
	Catalog    *catalog.Catalog
	Activity   *catalog.ActivityLog

	// AppName is shown in page titles.
	AppName string

	// ToastDuration is set on the toasts the pages add. Zero keeps them
	// until dismissed.
	ToastDuration time.Duration

	// Now is the clock used for admin log entries.
	Now func() time.Time
}

// Handler serves every HTML page.
type Handler struct {
	renderer   *TemplateRenderer
	logger     *slog.Logger
	backend    Backend
	auth       AuthProvider
	sessions   SessionWriter
	toasts     ToastDirectory
	streams    StreamCloser
	translator Translator
	catalog    *catalog.Catalog
	activity   *catalog.ActivityLog
	appName    string
	now        func() time.Time
	pending    *Pending

	toastDuration time.Duration
}

// NewHandler creates the page handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AppName == "" {
		cfg.AppName = "INSTWAVE"
	}
	if cfg.Activity == nil && cfg.Catalog != nil {
		cfg.Activity = catalog.NewActivityLog(cfg.Catalog.SystemLogs(), catalog.DefaultActivityLimit)
	}

	return &Handler{
		renderer:   cfg.Renderer,
		logger:     cfg.Logger,
		backend:    cfg.Backend,
		auth:       cfg.Auth,
		sessions:   cfg.Sessions,
		toasts:     cfg.Toasts,
		streams:    cfg.Streams,
		translator: cfg.Translator,
		catalog:    cfg.Catalog,
		activity:   cfg.Activity,
		appName:    cfg.AppName,
		now:        cfg.Now,
		pending:    NewPending(),

		toastDuration: cfg.ToastDuration,
	}
}

// PageData is passed to every page and partial.
type PageData struct {
	Title   string
	AppName string
	Lang    string
	Path    string
	User    *backend.User
	Toasts  []toast.Toast
	Data    any

	// OOB marks the toast region as an out-of-band swap.
	OOB bool

	translator Translator
}

// T translates key into the page language.
func (p PageData) T(key string) string {
	if p.translator == nil {
		return key
	}
	return p.translator.T(p.Lang, key)
}

// LoggedIn reports whether a user is signed in.
func (p PageData) LoggedIn() bool {
	return p.User != nil
}

func (h *Handler) t(c echo.Context, key string) string {
	return h.translator.T(middleware.GetLanguage(c), key)
}

func (h *Handler) pageData(c echo.Context, titleKey string, data any) PageData {
	sess := middleware.GetSession(c)
	p := PageData{
		AppName:    h.appName,
		Lang:       middleware.GetLanguage(c),
		Path:       c.Request().URL.Path,
		Data:       data,
		translator: h.translator,
	}
	p.Title = p.T(titleKey)
	if sess != nil {
		p.User = sess.User
		p.Toasts = h.visibleToasts(sess.ID)
	}
	return p
}

func (h *Handler) visibleToasts(sessionID string) []toast.Toast {
	store, ok := h.toasts.Lookup(sessionID)
	if !ok {
		return []toast.Toast{}
	}
	return store.State().Visible()
}

// render writes a full page.
func (h *Handler) render(c echo.Context, page, titleKey string, data any) error {
	h.saveSession(c)
	return c.Render(http.StatusOK, page, h.pageData(c, titleKey, data))
}

// renderToasts answers an htmx action with the toast region only.
func (h *Handler) renderToasts(c echo.Context) error {
	p := h.pageData(c, "", nil)
	p.OOB = true
	return c.Render(http.StatusOK, "toasts", p)
}

// RenderToastFrame renders the toast region pushed over the live stream.
func (h *Handler) RenderToastFrame(st toast.State, lang string) ([]byte, error) {
	return h.renderer.RenderString("toasts", PageData{
		Lang:       lang,
		Toasts:     st.Visible(),
		OOB:        true,
		translator: h.translator,
	})
}

// saveSession writes the session cookie so the session id stays stable.
func (h *Handler) saveSession(c echo.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		return
	}
	if err := h.sessions.Save(c.Response(), sess); err != nil {
		h.logger.ErrorContext(c.Request().Context(), "failed to save session",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

// notify adds a toast for the caller's session.
func (h *Handler) notify(c echo.Context, t toast.Toast) {
	sess := middleware.GetSession(c)
	if sess == nil {
		return
	}
	h.saveSession(c)
	if t.Duration == 0 {
		t.Duration = h.toastDuration
	}
	h.toasts.Get(sess.ID).Add(t)
}

func (h *Handler) notifySuccess(c echo.Context, description string) {
	h.notify(c, toast.Toast{Title: h.t(c, "success"), Description: description})
}

func (h *Handler) notifyError(c echo.Context, description string) {
	h.notify(c, toast.Toast{
		Title:       h.t(c, "error"),
		Description: description,
		Variant:     toast.VariantDestructive,
	})
}

func orDefault(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

// finish ends a form action: htmx callers get the toast region, everyone
// else is sent to back.
func (h *Handler) finish(c echo.Context, back string) error {
	if middleware.IsHTMX(c) {
		return h.renderToasts(c)
	}
	return c.Redirect(http.StatusSeeOther, back)
}

// begin marks op pending for the caller's session. When op is already
// running it reports the conflict through a toast and returns ok=false.
func (h *Handler) begin(c echo.Context, op string) (func(), bool) {
	sess := middleware.GetSession(c)
	done, ok := h.pending.Begin(sess.ID, op)
	if !ok {
		h.logger.InfoContext(c.Request().Context(), "duplicate submission rejected",
			slog.String("session_id", sess.ID),
			slog.String("operation", op),
		)
		h.notifyError(c, h.t(c, "request_in_progress"))
	}
	return done, ok
}

// RateLimited renders the rejection of a throttled submission.
func (h *Handler) RateLimited(c echo.Context, _ time.Duration) error {
	h.notifyError(c, middleware.DefaultRateLimitMessage)
	if middleware.IsHTMX(c) {
		return h.renderToasts(c)
	}
	return c.String(http.StatusTooManyRequests, middleware.DefaultRateLimitMessage)
}

// RegisterRoutes registers every page route.
func (h *Handler) RegisterRoutes(e *echo.Echo, public, member, admin *echo.Group) {
	public.GET(PathRoot, h.Root)
	public.GET(PathLogin, h.LoginPage)
	public.POST(PathLogin, h.Login)
	public.GET(PathRegister, h.RegisterPage)
	public.POST(PathRegister, h.Register)
	public.POST(PathLogout, h.Logout)
	public.GET(PathSubscribe, h.SubscribePage)
	public.POST(PathSubscribe, h.Subscribe)
	public.GET(PathDigest, h.Digest)
	public.GET("/lang/:code", h.SwitchLanguage)

	public.GET("/partials/toasts", h.ToastsPartial)
	public.GET("/api/toasts", h.ToastState)
	public.POST("/toasts/dismiss", h.DismissToast)
	public.POST("/toasts/:id/dismiss", h.DismissToast)

	member.GET("", h.Dashboard)
	member.POST("/preferences", h.UpdatePreferences)
	member.POST("/send-digest", h.SendDigest)
	member.GET("/kakao", h.ConnectKakao)

	admin.GET("", h.Admin)
	admin.POST("/digest", h.AdminSendDigest)
	admin.POST("/summaries/refresh", h.AdminRefreshSummaries)
	admin.POST("/notifications/refresh", h.AdminRefreshNotifications)

	e.RouteNotFound("/*", h.NotFound)
}
