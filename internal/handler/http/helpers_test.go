package httphandler_test

import (
	"context"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/instwave/digest-web/internal/catalog"
	httphandler "github.com/instwave/digest-web/internal/handler/http"
	"github.com/instwave/digest-web/internal/i18n"
	"github.com/instwave/digest-web/internal/infrastructure/backend"
	"github.com/instwave/digest-web/internal/infrastructure/httpserver"
	"github.com/instwave/digest-web/internal/middleware"
	"github.com/instwave/digest-web/internal/session"
	"github.com/instwave/digest-web/internal/toast"
	"github.com/instwave/digest-web/web"
)

const (
	testSecret        = "test-secret"
	sessionCookieName = "instwave_session"
	memberSessionID   = "sess-member"
	adminSessionID    = "sess-admin"
	memberEmail       = "test@example.com"
	adminEmail        = "admin@example.com"
)

var fixedNow = time.Date(2025, 6, 9, 15, 4, 5, 0, time.UTC)

const testToastDuration = 4 * time.Second

// fakeBackend answers the page calls with canned results.
type fakeBackend struct {
	mu sync.Mutex

	topics backend.TopicsResult
	prefs  backend.ActionResult
	digest backend.ActionResult
	kakao  backend.KakaoAuthResult
	submit backend.SubmitResult

	gotPrefs    []backend.Preferences
	gotSubs     []backend.Subscription
	subCookies  []backend.Cookies
	digestCalls int

	// digestGate holds SendDigestNow until closed; digestEntered is signalled on entry.
	digestGate    chan struct{}
	digestEntered chan struct{}
}

func newFakeBackend() *fakeBackend {
	ok := backend.Envelope{Success: true, Cookies: backend.Cookies{"sessionid": "abc"}}
	return &fakeBackend{
		topics: backend.TopicsResult{
			Envelope: ok,
			Topics:   []backend.Topic{{ID: 1, Label: "AI"}, {ID: 2, Label: "ML"}},
		},
		prefs:  backend.ActionResult{Envelope: ok},
		digest: backend.ActionResult{Envelope: ok},
		kakao: backend.KakaoAuthResult{
			Envelope: ok,
			AuthURL:  "https://kauth.kakao.com/oauth/authorize?client_id=test",
		},
		submit: backend.SubmitResult{Status: backend.StatusSuccess, Message: "Subscription received!", UserID: 42},
	}
}

func (b *fakeBackend) Topics(context.Context, backend.Cookies) backend.TopicsResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topics
}

func (b *fakeBackend) UpdatePreferences(_ context.Context, _ backend.Cookies, p backend.Preferences) backend.ActionResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gotPrefs = append(b.gotPrefs, p)
	return b.prefs
}

func (b *fakeBackend) SendDigestNow(context.Context, backend.Cookies) backend.ActionResult {
	b.mu.Lock()
	b.digestCalls++
	gate, entered, res := b.digestGate, b.digestEntered, b.digest
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return res
}

func (b *fakeBackend) KakaoAuthURL(context.Context, backend.Cookies) backend.KakaoAuthResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kakao
}

func (b *fakeBackend) Submit(_ context.Context, cookies backend.Cookies, sub backend.Subscription) backend.SubmitResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gotSubs = append(b.gotSubs, sub)
	b.subCookies = append(b.subCookies, cookies)
	return b.submit
}

func (b *fakeBackend) submitCookies() []backend.Cookies {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Cookies(nil), b.subCookies...)
}

func (b *fakeBackend) preferences() []backend.Preferences {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Preferences(nil), b.gotPrefs...)
}

func (b *fakeBackend) subscriptions() []backend.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Subscription(nil), b.gotSubs...)
}

// fakeAuth signs sessions in without a backend.
type fakeAuth struct {
	mu sync.Mutex

	login    session.Result
	register session.Result
	logout   session.Result
	record   *backend.Dashboard

	logins     int
	registered [][]int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		login:    session.Result{Success: true},
		register: session.Result{Success: true},
		logout:   session.Result{Success: true},
		record:   testRecord(),
	}
}

func testRecord() *backend.Dashboard {
	return &backend.Dashboard{
		ID:                 7,
		Name:               "Test User",
		Email:              memberEmail,
		Language:           "en",
		NotificationMethod: "email",
		Active:             true,
		UserTopics:         []int{1},
		AllTopics:          []backend.Topic{{ID: 1, Label: "AI"}, {ID: 2, Label: "ML"}},
		NextTuesday:        "2025-06-10",
	}
}

func (a *fakeAuth) Login(_ context.Context, s *session.Session, email, _ string) session.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins++
	if a.login.Success {
		s.User = &backend.User{ID: 7, Email: email, Name: "Test User"}
	}
	return a.login
}

func (a *fakeAuth) Register(_ context.Context, s *session.Session, name, email, _ string, topics []int) session.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registered = append(a.registered, topics)
	if a.register.Success {
		s.User = &backend.User{ID: 8, Email: email, Name: name}
	}
	return a.register
}

func (a *fakeAuth) Logout(_ context.Context, s *session.Session) session.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.logout.Success {
		s.User = nil
	}
	return a.logout
}

func (a *fakeAuth) Check(_ context.Context, s *session.Session) (*backend.Dashboard, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !s.LoggedIn() || a.record == nil {
		return nil, false
	}
	u := a.record.User()
	s.User = &u
	return a.record, true
}

func (a *fakeAuth) loginCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

func (a *fakeAuth) registrations() [][]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]int(nil), a.registered...)
}

type fakeStreams struct {
	mu     sync.Mutex
	closed []string
}

func (s *fakeStreams) CloseSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, id)
}

func (s *fakeStreams) closedSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.closed...)
}

type fixture struct {
	e        *echo.Echo
	handler  *httphandler.Handler
	renderer *httphandler.TemplateRenderer
	codec    *session.Codec
	toasts   *toast.Directory
	backend  *fakeBackend
	auth     *fakeAuth
	streams  *fakeStreams
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	renderer, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{FS: web.TemplatesFS})
	require.NoError(t, err)
	translator, err := i18n.New(i18n.English)
	require.NoError(t, err)
	cat, err := catalog.Load()
	require.NoError(t, err)

	f := &fixture{
		renderer: renderer,
		codec: session.NewCodec(session.CodecConfig{
			Secret:     testSecret,
			TTL:        time.Hour,
			CookieName: sessionCookieName,
		}),
		toasts:  toast.NewDirectory(),
		backend: newFakeBackend(),
		auth:    newFakeAuth(),
		streams: &fakeStreams{},
	}
	t.Cleanup(f.toasts.Close)

	f.handler = httphandler.NewHandler(httphandler.Config{
		Renderer:   renderer,
		Backend:    f.backend,
		Auth:       f.auth,
		Sessions:   f.codec,
		Toasts:     f.toasts,
		Streams:    f.streams,
		Translator: translator,
		Catalog:    cat,
		Now:        func() time.Time { return fixedNow },

		ToastDuration: testToastDuration,
	})

	f.e = echo.New()
	f.e.Renderer = renderer

	cfg := httpserver.DefaultRouterConfig()
	cfg.SessionMiddleware = middleware.Sessions(middleware.SessionConfig{Codec: f.codec})
	cfg.LanguageMiddleware = middleware.Language(translator)
	cfg.IsAdmin = func(email string) bool { return email == adminEmail }
	router := httpserver.NewRouter(f.e, cfg)

	f.handler.RegisterRoutes(f.e,
		router.Public(),
		router.Member(httphandler.PathDashboard),
		router.Admin(httphandler.PathAdmin),
	)
	return f
}

type requestOption func(*stdhttp.Request)

func withCookie(c *stdhttp.Cookie) requestOption {
	return func(r *stdhttp.Request) { r.AddCookie(c) }
}

func withHeader(key, value string) requestOption {
	return func(r *stdhttp.Request) { r.Header.Set(key, value) }
}

func asHTMX() requestOption {
	return withHeader("HX-Request", "true")
}

func (f *fixture) do(req *stdhttp.Request, opts ...requestOption) *httptest.ResponseRecorder {
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(target string, opts ...requestOption) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(stdhttp.MethodGet, target, nil), opts...)
}

func (f *fixture) post(target string, form url.Values, opts ...requestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(stdhttp.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return f.do(req, opts...)
}

// sessionCookie signs s into a request cookie.
func (f *fixture) sessionCookie(t *testing.T, s *session.Session) *stdhttp.Cookie {
	t.Helper()
	raw, err := f.codec.Encode(s)
	require.NoError(t, err)
	return &stdhttp.Cookie{Name: sessionCookieName, Value: raw}
}

func (f *fixture) memberCookie(t *testing.T) *stdhttp.Cookie {
	t.Helper()
	return f.sessionCookie(t, &session.Session{
		ID:   memberSessionID,
		User: &backend.User{ID: 7, Email: memberEmail, Name: "Test User"},
	})
}

func (f *fixture) adminCookie(t *testing.T) *stdhttp.Cookie {
	t.Helper()
	return f.sessionCookie(t, &session.Session{
		ID:   adminSessionID,
		User: &backend.User{ID: 1, Email: adminEmail, Name: "Admin"},
	})
}

// savedSession decodes the last session cookie written to rec.
func (f *fixture) savedSession(t *testing.T, rec *httptest.ResponseRecorder) *session.Session {
	t.Helper()
	var raw string
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			raw = c.Value
		}
	}
	require.NotEmpty(t, raw, "response carries no session cookie")

	s, err := f.codec.Decode(raw)
	require.NoError(t, err)
	return s
}

func (f *fixture) visibleToasts(sessionID string) []toast.Toast {
	store, ok := f.toasts.Lookup(sessionID)
	if !ok {
		return nil
	}
	return store.State().Visible()
}

func (f *fixture) lastToast(t *testing.T, sessionID string) toast.Toast {
	t.Helper()
	visible := f.visibleToasts(sessionID)
	require.NotEmpty(t, visible, "session %s has no visible toast", sessionID)
	return visible[0]
}
