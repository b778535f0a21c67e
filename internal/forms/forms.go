// Package forms parses and validates the web forms before anything is sent
// to the backend.
package forms

import (
	"errors"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/instwave/digest-web/internal/infrastructure/backend"
)

// Validation messages.
const (
	MsgAllFieldsRequired      = "All fields are required"
	MsgCredentialsRequired    = "Email and password are required"
	MsgNameEmailRequired      = "Name and email are required."
	MsgAtLeastThreeTopics     = "Please select at least 3 research topics."
	MsgInvalidTopicPrefix     = "Invalid topic selection: "
	MsgInvalidLanguage        = "Please choose English or Korean"
	MsgInvalidMethod          = "Please choose a notification method"
	MsgInvalidChannel         = "Please choose email or KakaoTalk"
	keyAtLeastOneTopic        = "at_least_one_topic"
	minSubscriptionTopicCount = 3
)

// Notification methods accepted by the backend.
const (
	MethodEmail = "email"
	MethodKakao = "kakao"
	MethodBoth  = "both"
)

// SubscriptionTopicIDs are the topic identifiers the public form accepts.
var SubscriptionTopicIDs = []string{"1", "2", "3", "4", "5", "6"}

// ErrValidation is wrapped by every validation failure.
var ErrValidation = errors.New("validation failed")

// ValidationError carries the message shown to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// Message returns the user-facing message of a validation error, or "".
func Message(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return ""
}

// Translate maps a message key to text in the user's language.
type Translate func(key string) string

// Login is the login form.
type Login struct {
	Email    string
	Password string
}

// ParseLogin reads the login form.
func ParseLogin(values url.Values) Login {
	return Login{
		Email:    strings.TrimSpace(values.Get("email")),
		Password: values.Get("password"),
	}
}

// Validate checks that both credentials are present.
func (f Login) Validate() error {
	if f.Email == "" || f.Password == "" {
		return invalid(MsgCredentialsRequired)
	}
	return nil
}

// Register is the account registration form.
type Register struct {
	Name     string
	Email    string
	Password string
	Topics   []int

	// InvalidTopics holds the topic values that are not numbers.
	InvalidTopics []string
}

// ParseRegister reads the registration form.
func ParseRegister(values url.Values) Register {
	topics, bad := parseTopics(values["topics"])
	return Register{
		Name:          strings.TrimSpace(values.Get("name")),
		Email:         strings.TrimSpace(values.Get("email")),
		Password:      values.Get("password"),
		Topics:        topics,
		InvalidTopics: bad,
	}
}

// Validate requires every field, valid topic ids and at least one topic.
func (f Register) Validate(t Translate) error {
	if f.Name == "" || f.Email == "" || f.Password == "" {
		return invalid(MsgAllFieldsRequired)
	}
	if len(f.InvalidTopics) > 0 {
		return invalidTopics(f.InvalidTopics)
	}
	if len(f.Topics) < 1 {
		return invalid(t(keyAtLeastOneTopic))
	}
	return nil
}

// ParsePreferences reads the preference form of the dashboard.
// Topic values that are not numbers yield a validation error.
func ParsePreferences(values url.Values) (backend.Preferences, error) {
	topics, bad := parseTopics(values["topics"])
	active := values.Get("active")
	prefs := backend.Preferences{
		Topics:             topics,
		Language:           strings.TrimSpace(values.Get("language")),
		NotificationMethod: strings.TrimSpace(values.Get("notification_method")),
		Active:             active == "on" || active == "true" || active == "1",
	}
	if len(bad) > 0 {
		return prefs, invalidTopics(bad)
	}
	return prefs, nil
}

// ValidatePreferences requires at least one topic, a known language and a
// known notification method.
func ValidatePreferences(p backend.Preferences, t Translate) error {
	if len(p.Topics) < 1 {
		return invalid(t(keyAtLeastOneTopic))
	}
	if p.Language != "en" && p.Language != "ko" {
		return invalid(MsgInvalidLanguage)
	}
	if !slices.Contains([]string{MethodEmail, MethodKakao, MethodBoth}, p.NotificationMethod) {
		return invalid(MsgInvalidMethod)
	}
	return nil
}

// Subscribe is the public subscription form.
type Subscribe struct {
	Name      string
	Email     string
	RawTopics []string
	Channels  []string
}

// ParseSubscribe reads the subscription form.
func ParseSubscribe(values url.Values) Subscribe {
	return Subscribe{
		Name:      strings.TrimSpace(values.Get("name")),
		Email:     strings.TrimSpace(values.Get("email")),
		RawTopics: values["topics"],
		Channels:  values["channels"],
	}
}

// Validate checks the form and returns the backend payload.
func (f Subscribe) Validate() (backend.Subscription, error) {
	if f.Name == "" || f.Email == "" {
		return backend.Subscription{}, invalid(MsgNameEmailRequired)
	}
	if len(f.RawTopics) < minSubscriptionTopicCount {
		return backend.Subscription{}, invalid(MsgAtLeastThreeTopics)
	}

	var bad []string
	for _, raw := range f.RawTopics {
		if !slices.Contains(SubscriptionTopicIDs, raw) {
			bad = append(bad, raw)
		}
	}
	if len(bad) > 0 {
		return backend.Subscription{}, invalidTopics(bad)
	}

	for _, ch := range f.Channels {
		if ch != MethodEmail && ch != MethodKakao {
			return backend.Subscription{}, invalid(MsgInvalidChannel)
		}
	}

	topics, bad := parseTopics(f.RawTopics)
	if len(bad) > 0 {
		return backend.Subscription{}, invalidTopics(bad)
	}

	return backend.Subscription{
		Name:     f.Name,
		Email:    f.Email,
		Topics:   topics,
		Channels: f.Channels,
	}, nil
}

func invalidTopics(bad []string) error {
	return invalid(MsgInvalidTopicPrefix + strings.Join(bad, ", "))
}

// parseTopics converts topic ids, skipping duplicates. It also returns the
// values that are not numbers.
func parseTopics(raw []string) ([]int, []string) {
	ids := make([]int, 0, len(raw))
	var bad []string
	for _, r := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(r))
		if err != nil {
			bad = append(bad, r)
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, bad
}
