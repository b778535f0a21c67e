// Package catalog serves the sample content shown on the digest and admin pages.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed data/catalog.yaml
var embedded []byte

// AllTopics selects every paper.
const AllTopics = "all"

// Topic is a selectable research topic of the subscription form.
type Topic struct {
	ID    int    `yaml:"id"`
	Label string `yaml:"label"`
}

// Paper is an entry of the weekly digest.
type Paper struct {
	Title   string   `yaml:"title"`
	Authors []string `yaml:"authors"`
	Date    string   `yaml:"date"`
	Summary string   `yaml:"summary"`
	Link    string   `yaml:"link"`
	Topics  []string `yaml:"topics"`
}

// About reports whether the paper belongs to topic, by tag or by title.
func (p Paper) About(topic string) bool {
	if topic == "" || topic == AllTopics {
		return true
	}
	for _, t := range p.Topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(p.Title), strings.ToLower(topic))
}

// Subscriber is a row of the admin subscriber table.
type Subscriber struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Email    string   `yaml:"email"`
	Topics   []string `yaml:"topics"`
	Channels []string `yaml:"channels"`
}

// ThesisSummary is a summarized thesis shown to administrators.
type ThesisSummary struct {
	ID            string   `yaml:"id"`
	Title         string   `yaml:"title"`
	Authors       []string `yaml:"authors"`
	Summary       string   `yaml:"summary"`
	AISummary     string   `yaml:"ai_summary"`
	PublishedDate string   `yaml:"published_date"`
	Categories    []string `yaml:"categories"`
	SourceURL     string   `yaml:"source_url"`
}

// Notification statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is a delivered or failed digest notification.
type Notification struct {
	ID          string
	UserEmail   string
	ChannelType string
	Content     string
	Status      string
	SentAt      time.Time
}

// Failed reports whether delivery failed.
func (n Notification) Failed() bool {
	return n.Status == StatusFailed
}

type notificationRecord struct {
	ID          string `yaml:"id"`
	UserEmail   string `yaml:"user_email"`
	ChannelType string `yaml:"channel_type"`
	Content     string `yaml:"content"`
	Status      string `yaml:"status"`
	SentAt      string `yaml:"sent_at"`
}

type document struct {
	SubscriptionTopics []Topic              `yaml:"subscription_topics"`
	PaperTopics        []string             `yaml:"paper_topics"`
	Papers             []Paper              `yaml:"papers"`
	Subscribers        []Subscriber         `yaml:"subscribers"`
	SystemLogs         []string             `yaml:"system_logs"`
	ThesisSummaries    []ThesisSummary      `yaml:"thesis_summaries"`
	Notifications      []notificationRecord `yaml:"notifications"`
}

// Catalog is read-only sample content.
type Catalog struct {
	doc           document
	notifications []Notification
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	notifications := make([]Notification, 0, len(doc.Notifications))
	for _, rec := range doc.Notifications {
		sentAt, err := time.Parse(time.RFC3339, rec.SentAt)
		if err != nil {
			return nil, fmt.Errorf("notification %s: sent_at: %w", rec.ID, err)
		}
		notifications = append(notifications, Notification{
			ID:          rec.ID,
			UserEmail:   rec.UserEmail,
			ChannelType: rec.ChannelType,
			Content:     rec.Content,
			Status:      rec.Status,
			SentAt:      sentAt,
		})
	}
	slices.SortStableFunc(notifications, func(a, b Notification) int {
		return b.SentAt.Compare(a.SentAt)
	})

	return &Catalog{doc: doc, notifications: notifications}, nil
}

// SubscriptionTopics lists the topics of the public subscription form.
func (c *Catalog) SubscriptionTopics() []Topic {
	return slices.Clone(c.doc.SubscriptionTopics)
}

// PaperTopics lists the digest page filters.
func (c *Catalog) PaperTopics() []string {
	return slices.Clone(c.doc.PaperTopics)
}

// Papers returns the papers about topic; AllTopics or "" returns every paper.
func (c *Catalog) Papers(topic string) []Paper {
	out := make([]Paper, 0, len(c.doc.Papers))
	for _, p := range c.doc.Papers {
		if p.About(topic) {
			out = append(out, p)
		}
	}
	return out
}

// Subscribers lists the sample subscribers.
func (c *Catalog) Subscribers() []Subscriber {
	return slices.Clone(c.doc.Subscribers)
}

// ThesisSummaries lists the sample thesis summaries.
func (c *Catalog) ThesisSummaries() []ThesisSummary {
	return slices.Clone(c.doc.ThesisSummaries)
}

// Notifications lists recent notifications, newest first.
func (c *Catalog) Notifications() []Notification {
	return slices.Clone(c.notifications)
}

// SystemLogs lists the seeded system log lines, newest first.
func (c *Catalog) SystemLogs() []string {
	return slices.Clone(c.doc.SystemLogs)
}

// DefaultActivityLimit is how many system log lines the admin panel keeps.
const DefaultActivityLimit = 50

// ActivityLog is the admin panel's system log. New entries go on top.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []string
	limit   int
}

// NewActivityLog creates a log seeded with entries, keeping at most limit lines.
func NewActivityLog(seed []string, limit int) *ActivityLog {
	entries := slices.Clone(seed)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return &ActivityLog{entries: entries, limit: limit}
}

// Prepend adds an entry on top.
func (l *ActivityLog) Prepend(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]string{entry}, l.entries...)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
}

// Entries returns a copy of the log.
func (l *ActivityLog) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}
