// Package session keeps the signed-in state of a browser and wraps the
// backend's login, registration and logout calls.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/instwave/digest-web/internal/infrastructure/backend"
)

const issuer = "instwave-web"

// Cookie codec errors.
var (
	ErrNoSession      = errors.New("no session cookie")
	ErrInvalidSession = errors.New("invalid session cookie")
)

// Session is the state carried by the session cookie.
// It is never stored server-side.
type Session struct {
	ID      string
	User    *backend.User
	Lang    string
	Backend backend.Cookies
}

// LoggedIn reports whether a user is attached.
func (s *Session) LoggedIn() bool {
	return s != nil && s.User != nil
}

type claims struct {
	User    *backend.User   `json:"usr,omitempty"`
	Lang    string          `json:"lang,omitempty"`
	Backend backend.Cookies `json:"bck,omitempty"`
	jwt.RegisteredClaims
}

// CodecConfig configures a Codec.
type CodecConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	Secure     bool
	Logger     *slog.Logger
}

// Codec reads and writes the session cookie as an HS256-signed JWT.
type Codec struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	logger     *slog.Logger
}

// NewCodec creates a cookie codec.
func NewCodec(cfg CodecConfig) *Codec {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		logger:     logger,
	}
}

// Encode signs s into a token.
func (c *Codec) Encode(s *Session) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		User:    s.User,
		Lang:    s.Lang,
		Backend: s.Backend,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies a token produced by Encode.
func (c *Codec) Decode(raw string) (*Session, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidSession)
	}

	return &Session{
		ID:      parsed.ID,
		User:    parsed.User,
		Lang:    parsed.Lang,
		Backend: parsed.Backend,
	}, nil
}

// Read returns the session carried by r.
func (c *Codec) Read(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(c.cookieName)
	if err != nil {
		return nil, ErrNoSession
	}
	return c.Decode(cookie.Value)
}

// Load returns the session carried by r, or a fresh anonymous session when
// the cookie is missing or does not verify.
func (c *Codec) Load(r *http.Request) *Session {
	s, err := c.Read(r)
	if err == nil {
		return s
	}
	if !errors.Is(err, ErrNoSession) {
		c.logger.DebugContext(r.Context(), "discarding session cookie", slog.String("error", err.Error()))
	}
	return &Session{ID: uuid.NewString(), Backend: backend.Cookies{}}
}

// Save writes s to the response.
func (c *Codec) Save(w http.ResponseWriter, s *Session) error {
	value, err := c.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (c *Codec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
