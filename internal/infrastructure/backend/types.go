package backend

import (
	"net/http"
	"slices"
	"time"
)

// Envelope is the common part of every backend reply.
// Success false with a Message is a failure the backend reported itself
// or a transport failure translated into a fixed user-facing message.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// Cookies holds the backend session cookies after the call.
	Cookies Cookies `json:"-"`
}

func (e *Envelope) envelope() *Envelope { return e }

// Cookies carries the backend's session cookies between calls, keyed by name.
type Cookies map[string]string

// apply returns a copy of c updated with the Set-Cookie headers of resp.
func (c Cookies) apply(resp *http.Response) Cookies {
	next := make(Cookies, len(c))
	for name, value := range c {
		next[name] = value
	}
	now := time.Now()
	for _, cookie := range resp.Cookies() {
		expired := cookie.MaxAge < 0 || (!cookie.Expires.IsZero() && cookie.Expires.Before(now))
		if expired || cookie.Value == "" {
			delete(next, cookie.Name)
			continue
		}
		next[cookie.Name] = cookie.Value
	}
	return next
}

func (c Cookies) attach(req *http.Request) {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		req.AddCookie(&http.Cookie{Name: name, Value: c[name]})
	}
}

// User is the account summary returned on login.
type User struct {
	ID                 int    `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Language           string `json:"language"`
	NotificationMethod string `json:"notification_method"`
	Active             bool   `json:"active"`
}

// Topic is a research topic a subscriber can follow.
type Topic struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Dashboard is the subscriber's preference record.
type Dashboard struct {
	ID                 int     `json:"id"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Language           string  `json:"language"`
	NotificationMethod string  `json:"notification_method"`
	Active             bool    `json:"active"`
	UserTopics         []int   `json:"user_topics"`
	AllTopics          []Topic `json:"all_topics"`
	NextTuesday        string  `json:"next_tuesday"`
	KakaoConnected     bool    `json:"kakao_connected"`
}

// HasTopic reports whether the subscriber follows topic id.
func (d Dashboard) HasTopic(id int) bool {
	return slices.Contains(d.UserTopics, id)
}

// User returns the account summary contained in the record.
func (d Dashboard) User() User {
	return User{
		ID:                 d.ID,
		Email:              d.Email,
		Name:               d.Name,
		Language:           d.Language,
		NotificationMethod: d.NotificationMethod,
		Active:             d.Active,
	}
}

// Preferences is the payload of a preference update.
type Preferences struct {
	Topics             []int  `json:"topics"`
	Language           string `json:"language"`
	NotificationMethod string `json:"notification_method"`
	Active             bool   `json:"active"`
}

// Subscription is the payload of the public subscription form.
type Subscription struct {
	Name     string
	Email    string
	Topics   []int
	Channels []string
}

// LoginResult is the reply to Login.
type LoginResult struct {
	Envelope
	User *User `json:"user,omitempty"`
}

// RegisterResult is the reply to Register.
type RegisterResult struct {
	Envelope
	UserID int `json:"user_id,omitempty"`
}

// DashboardResult is the reply to Dashboard.
type DashboardResult struct {
	Envelope
	Data *Dashboard `json:"data,omitempty"`
}

// TopicsResult is the reply to Topics.
type TopicsResult struct {
	Envelope
	Topics []Topic `json:"topics,omitempty"`
}

// KakaoAuthResult is the reply to KakaoAuthURL.
type KakaoAuthResult struct {
	Envelope
	AuthURL string `json:"auth_url,omitempty"`
}

// ActionResult is the reply to calls that carry no data.
type ActionResult struct {
	Envelope
}

// Submission statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SubmitResult is the reply to Submit. Unlike the other endpoints it uses a
// status string instead of a success flag.
type SubmitResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	UserID  int    `json:"user_id,omitempty"`

	// Cookies holds the backend session cookies after the call.
	Cookies Cookies `json:"-"`
}

// OK reports whether the subscription was accepted.
func (r SubmitResult) OK() bool {
	return r.Status == StatusSuccess
}
