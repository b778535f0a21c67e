// Package backend is the HTTP client for the digest backend API.
//
// Every method returns a typed result and never a Go error: transport
// failures are logged and turned into Success=false with a fixed message,
// so callers only ever deal with the backend's envelope.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/instwave/digest-web/internal/infrastructure/metrics"
)

// Client errors. They never leave the package; they show up in logs.
var (
	ErrRequestFailed   = errors.New("backend request failed")
	ErrInvalidResponse = errors.New("invalid response from backend")
)

// Fixed user-facing messages for transport failures.
const (
	MsgNetworkError       = "Network error. Please try again later."
	MsgDashboardFailed    = "Failed to load dashboard data. Please try again."
	MsgTopicsFailed       = "Failed to get topics. Please try again."
	MsgPreferencesFailed  = "Failed to update preferences. Please try again."
	MsgSendDigestFailed   = "Failed to send digest. Please try again."
	MsgLogoutFailed       = "Logout failed. Please try again."
	MsgKakaoAuthFailed    = "Failed to get Kakao auth URL"
	MsgSubmitUnreachable  = "Unable to connect to the server. Please check your internet connection and try again."
	MsgSubmitUnexpected   = "An unexpected error occurred. Please try again later."
	MsgSubmissionFailed   = "Submission failed."
	MsgSubscriptionFailed = "Subscription failed."
	MsgSubscriptionTaken  = "Subscription received!"
	defaultRequestTimeout = 30 * time.Second
)

// Recorder receives one observation per backend call.
type Recorder interface {
	Observe(endpoint, outcome string, seconds float64)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    Recorder
}

// Client calls the digest backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    Recorder
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

type request struct {
	endpoint    string
	method      string
	path        string
	body        []byte
	contentType string
	fallback    string
}

func jsonRequest(endpoint, method, path string, payload any, fallback string) request {
	r := request{endpoint: endpoint, method: method, path: path, fallback: fallback}
	if payload != nil {
		// Payloads are plain structs and maps; Marshal cannot fail on them.
		r.body, _ = json.Marshal(payload)
		r.contentType = "application/json"
	}
	return r
}

// Login signs a subscriber in.
func (c *Client) Login(ctx context.Context, cookies Cookies, email, password string) LoginResult {
	payload := map[string]string{"email": email, "password": password}
	return send[LoginResult](ctx, c, cookies,
		jsonRequest("login", http.MethodPost, "/api/login", payload, MsgNetworkError))
}

// Register creates an account following the given topics.
func (c *Client) Register(
	ctx context.Context,
	cookies Cookies,
	name, email, password string,
	topics []int,
) RegisterResult {
	if topics == nil {
		topics = []int{}
	}
	payload := struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Topics   []int  `json:"topics"`
	}{name, email, password, topics}
	return send[RegisterResult](ctx, c, cookies,
		jsonRequest("register", http.MethodPost, "/api/register", payload, MsgNetworkError))
}

// Dashboard loads the signed-in subscriber's preference record.
// It doubles as the session check.
func (c *Client) Dashboard(ctx context.Context, cookies Cookies) DashboardResult {
	return send[DashboardResult](ctx, c, cookies,
		jsonRequest("dashboard", http.MethodGet, "/api/dashboard", nil, MsgDashboardFailed))
}

// Topics lists the research topics.
func (c *Client) Topics(ctx context.Context, cookies Cookies) TopicsResult {
	return send[TopicsResult](ctx, c, cookies,
		jsonRequest("topics", http.MethodGet, "/api/topics", nil, MsgTopicsFailed))
}

// UpdatePreferences stores new preferences for the signed-in subscriber.
func (c *Client) UpdatePreferences(ctx context.Context, cookies Cookies, prefs Preferences) ActionResult {
	if prefs.Topics == nil {
		prefs.Topics = []int{}
	}
	return send[ActionResult](ctx, c, cookies,
		jsonRequest("update_preferences", http.MethodPost, "/api/update_preferences", prefs, MsgPreferencesFailed))
}

// SendDigestNow asks the backend to deliver this week's digest immediately.
func (c *Client) SendDigestNow(ctx context.Context, cookies Cookies) ActionResult {
	return send[ActionResult](ctx, c, cookies,
		jsonRequest("send_digest_now", http.MethodPost, "/api/send_digest_now", nil, MsgSendDigestFailed))
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context, cookies Cookies) ActionResult {
	return send[ActionResult](ctx, c, cookies,
		jsonRequest("logout", http.MethodPost, "/api/logout", nil, MsgLogoutFailed))
}

// KakaoAuthURL returns the URL that starts the Kakao account link flow.
func (c *Client) KakaoAuthURL(ctx context.Context, cookies Cookies) KakaoAuthResult {
	return send[KakaoAuthResult](ctx, c, cookies,
		jsonRequest("kakao_auth", http.MethodGet, "/api/kakao_auth", nil, MsgKakaoAuthFailed))
}

// send performs req and decodes the envelope into R.
func send[R any, P interface {
	*R
	envelope() *Envelope
}](ctx context.Context, c *Client, cookies Cookies, req request) R {
	start := time.Now()

	var res R
	status, updated, err := c.roundTrip(ctx, req, cookies, P(&res))
	elapsed := time.Since(start).Seconds()

	if err != nil {
		c.logger.ErrorContext(ctx, "backend call failed",
			slog.String("endpoint", req.endpoint),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		c.observe(req.endpoint, metrics.OutcomeTransport, elapsed)

		var failed R
		env := P(&failed).envelope()
		env.Success = false
		env.Message = req.fallback
		env.Cookies = cookies
		return failed
	}

	env := P(&res).envelope()
	env.Cookies = updated
	if env.Success {
		c.observe(req.endpoint, metrics.OutcomeSuccess, elapsed)
	} else {
		c.logger.InfoContext(ctx, "backend rejected request",
			slog.String("endpoint", req.endpoint),
			slog.Int("status", status),
			slog.String("message", env.Message),
		)
		c.observe(req.endpoint, metrics.OutcomeRejected, elapsed)
	}
	return res
}

// roundTrip sends req and decodes the JSON body into out whatever the status,
// since the backend reports failures in the body.
func (c *Client) roundTrip(ctx context.Context, req request, cookies Cookies, out any) (int, Cookies, error) {
	resp, err := c.do(ctx, req, cookies)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: status %d: %w", ErrInvalidResponse, resp.StatusCode, decodeErr)
	}

	return resp.StatusCode, cookies.apply(resp), nil
}

func (c *Client) do(ctx context.Context, req request, cookies Cookies) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	cookies.attach(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	return resp, nil
}

// Submit sends the public subscription form. It uses its own envelope:
// a non-2xx reply yields the body's message, else the status text, else a
// generic failure.
func (c *Client) Submit(ctx context.Context, cookies Cookies, sub Subscription) SubmitResult {
	start := time.Now()

	form := url.Values{}
	form.Set("name", sub.Name)
	form.Set("email", sub.Email)
	for _, id := range sub.Topics {
		form.Add("topics", strconv.Itoa(id))
	}
	for _, ch := range sub.Channels {
		form.Add("channels", ch)
	}

	req := request{
		endpoint:    "submit",
		method:      http.MethodPost,
		path:        "/submit",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}

	res, outcome := c.submit(ctx, req, cookies)
	c.observe(req.endpoint, outcome, time.Since(start).Seconds())
	return res
}

func (c *Client) submit(ctx context.Context, req request, cookies Cookies) (SubmitResult, string) {
	resp, err := c.do(ctx, req, cookies)
	if err != nil {
		c.logger.ErrorContext(ctx, "subscription submit failed", slog.String("error", err.Error()))
		return SubmitResult{Status: StatusError, Message: MsgSubmitUnreachable, Cookies: cookies}, metrics.OutcomeTransport
	}
	defer resp.Body.Close()

	updated := cookies.apply(resp)

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var reply SubmitResult
		msg := MsgSubmissionFailed
		if json.Unmarshal(body, &reply) == nil && reply.Message != "" {
			msg = reply.Message
		} else if text := http.StatusText(resp.StatusCode); text != "" {
			msg = text
		}
		c.logger.InfoContext(ctx, "subscription rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg),
		)
		return SubmitResult{Status: StatusError, Message: msg, Cookies: updated}, metrics.OutcomeRejected
	}

	var reply SubmitResult
	if decodeErr := json.Unmarshal(body, &reply); decodeErr != nil {
		c.logger.ErrorContext(ctx, "subscription reply malformed",
			slog.String("error", fmt.Errorf("%w: %w", ErrInvalidResponse, decodeErr).Error()),
		)
		return SubmitResult{Status: StatusError, Message: MsgSubmitUnexpected, Cookies: updated}, metrics.OutcomeTransport
	}
	reply.Cookies = updated
	if !reply.OK() {
		if reply.Status == "" {
			reply.Status = StatusError
		}
		if reply.Message == "" {
			reply.Message = MsgSubscriptionFailed
		}
		return reply, metrics.OutcomeRejected
	}
	if reply.Message == "" {
		reply.Message = MsgSubscriptionTaken
	}
	return reply, metrics.OutcomeSuccess
}

func (c *Client) observe(endpoint, outcome string, seconds float64) {
	if c.metrics != nil {
		c.metrics.Observe(endpoint, outcome, seconds)
	}
}
