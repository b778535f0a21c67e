package session

import (
	"context"
	"log/slog"

	"github.com/instwave/digest-web/internal/infrastructure/backend"
)

// Failure messages used when the backend gives none.
const (
	MsgLoginFailed        = "Login failed"
	MsgRegistrationFailed = "Registration failed"
	MsgLogoutFailed       = "Logout failed"
)

// API is the subset of the backend client the provider needs.
type API interface {
	Login(ctx context.Context, cookies backend.Cookies, email, password string) backend.LoginResult
	Register(
		ctx context.Context,
		cookies backend.Cookies,
		name, email, password string,
		topics []int,
	) backend.RegisterResult
	Logout(ctx context.Context, cookies backend.Cookies) backend.ActionResult
	Dashboard(ctx context.Context, cookies backend.Cookies) backend.DashboardResult
}

// Result is the outcome of an auth operation.
type Result struct {
	Success bool
	Message string
}

// Provider performs login, registration and logout against the backend and
// records the outcome in the session.
type Provider struct {
	api    API
	logger *slog.Logger
}

// NewProvider creates an auth provider.
func NewProvider(api API, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{api: api, logger: logger}
}

// Login signs the session in.
func (p *Provider) Login(ctx context.Context, s *Session, email, password string) Result {
	res := p.api.Login(ctx, s.Backend, email, password)
	s.Backend = res.Cookies

	if res.Success && res.User != nil {
		s.User = res.User
		p.logger.InfoContext(ctx, "user logged in",
			slog.String("session_id", s.ID),
			slog.Int("user_id", res.User.ID),
		)
		return Result{Success: true}
	}

	return Result{Message: orDefault(res.Message, MsgLoginFailed)}
}

// Register creates an account and signs the session in with it.
func (p *Provider) Register(ctx context.Context, s *Session, name, email, password string, topics []int) Result {
	res := p.api.Register(ctx, s.Backend, name, email, password, topics)
	s.Backend = res.Cookies

	if !res.Success {
		return Result{Message: orDefault(res.Message, MsgRegistrationFailed)}
	}

	p.logger.InfoContext(ctx, "user registered", slog.Int("user_id", res.UserID))
	return p.Login(ctx, s, email, password)
}

// Logout ends the backend session and detaches the user.
// On failure the session is left unchanged.
func (p *Provider) Logout(ctx context.Context, s *Session) Result {
	res := p.api.Logout(ctx, s.Backend)
	if !res.Success {
		s.Backend = res.Cookies
		return Result{Message: orDefault(res.Message, MsgLogoutFailed)}
	}

	s.User = nil
	s.Backend = backend.Cookies{}
	return Result{Success: true}
}

// Check calls the dashboard endpoint and refreshes the session's user.
// It returns the preference record when the backend still knows the session.
func (p *Provider) Check(ctx context.Context, s *Session) (*backend.Dashboard, bool) {
	res := p.api.Dashboard(ctx, s.Backend)
	s.Backend = res.Cookies

	if !res.Success || res.Data == nil {
		s.User = nil
		return nil, false
	}

	user := res.Data.User()
	s.User = &user
	return res.Data, true
}

func orDefault(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
