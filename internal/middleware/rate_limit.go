package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Rate limit defaults.
const (
	DefaultRateLimit       = 20
	DefaultRateLimitWindow = time.Minute
	DefaultRateLimitPrefix = "instwave:ratelimit:"

	// DefaultRateLimitMessage is shown when a client submits too often.
	DefaultRateLimitMessage = "Too many requests. Please try again later."
)

// ErrRateLimitExceeded is reported when a key exceeds its budget.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitStore defines the interface for rate limit storage.
type RateLimitStore interface {
	// Increment bumps the counter for key and returns the new count.
	// A new key expires after window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetCount returns the current count for key.
	GetCount(ctx context.Context, key string) (int64, error)

	// GetTTL returns the remaining lifetime of key.
	GetTTL(ctx context.Context, key string) (time.Duration, error)
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	Logger *slog.Logger

	// Store keeps the counters. A nil store disables limiting.
	Store RateLimitStore

	// Limit is the number of requests allowed per window.
	Limit int

	Window time.Duration

	// Methods restricts counting to these HTTP methods. Empty counts every method.
	Methods []string

	// KeyFunc derives the counter key. Defaults to the signed-in session, then the client IP.
	KeyFunc func(c echo.Context) string

	SkipPaths []string

	Message string

	// ExceedHandler renders the rejection. Defaults to a 429 with Message.
	ExceedHandler func(c echo.Context, retryAfter time.Duration) error
}

// DefaultRateLimitConfig returns a RateLimitConfig that counts form posts.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Logger:    slog.Default(),
		Limit:     DefaultRateLimit,
		Window:    DefaultRateLimitWindow,
		Methods:   []string{http.MethodPost},
		SkipPaths: []string{"/health", "/ready", "/metrics"},
		Message:   DefaultRateLimitMessage,
	}
}

// RateLimit returns a rate limiting middleware with the given configuration.
func RateLimit(config RateLimitConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Limit <= 0 {
		config.Limit = DefaultRateLimit
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitWindow
	}
	if config.Message == "" {
		config.Message = DefaultRateLimitMessage
	}
	if config.KeyFunc == nil {
		config.KeyFunc = SessionOrIPKey
	}

	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}
	methods := make(map[string]struct{}, len(config.Methods))
	for _, m := range config.Methods {
		methods[m] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if config.Store == nil {
				return next(c)
			}
			if _, ok := skipPaths[req.URL.Path]; ok {
				return next(c)
			}
			if _, ok := methods[req.Method]; len(methods) > 0 && !ok {
				return next(c)
			}

			ctx := req.Context()
			key := config.KeyFunc(c)

			count, err := config.Store.Increment(ctx, key, config.Window)
			if err != nil {
				config.Logger.ErrorContext(ctx, "failed to increment rate limit counter",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				return next(c)
			}

			limit := int64(config.Limit)
			header := c.Response().Header()
			header.Set("X-Ratelimit-Limit", strconv.FormatInt(limit, 10))
			header.Set("X-Ratelimit-Remaining", strconv.FormatInt(max(limit-count, 0), 10))

			ttl, err := config.Store.GetTTL(ctx, key)
			if err == nil && ttl > 0 {
				header.Set("X-Ratelimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
			}

			if count <= limit {
				return next(c)
			}

			config.Logger.WarnContext(ctx, "rate limit exceeded",
				slog.String("key", key),
				slog.Int64("count", count),
				slog.Int64("limit", limit),
				slog.String("path", req.URL.Path),
			)
			if ttl > 0 {
				header.Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
			}
			if config.ExceedHandler != nil {
				return config.ExceedHandler(c, ttl)
			}
			return c.String(http.StatusTooManyRequests, config.Message)
		}
	}
}

// SessionOrIPKey keys signed-in users by session and everyone else by IP.
// Anonymous sessions are not stable until saved, so they fall back to the IP.
func SessionOrIPKey(c echo.Context) string {
	if s := GetSession(c); s.LoggedIn() {
		return "session:" + s.ID
	}
	return "ip:" + c.RealIP()
}

// MemoryRateLimitStore keeps counters in process memory.
type MemoryRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]*rateLimitEntry
	now    func() time.Time
}

type rateLimitEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryRateLimitStore creates a new in-memory rate limit store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		counts: make(map[string]*rateLimitEntry),
		now:    time.Now,
	}
}

// Increment increments the counter for the given key.
func (s *MemoryRateLimitStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.counts[key]; ok && now.Before(entry.expiresAt) {
		entry.count++
		return entry.count, nil
	}

	s.counts[key] = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
	return 1, nil
}

// GetCount returns the current count for the given key.
func (s *MemoryRateLimitStore) GetCount(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counts[key]
	if !ok || !s.now().Before(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

// GetTTL returns the remaining TTL for the given key.
func (s *MemoryRateLimitStore) GetTTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counts[key]
	if !ok {
		return 0, nil
	}
	return max(entry.expiresAt.Sub(s.now()), 0), nil
}

// Prune drops expired entries and returns how many were removed.
func (s *MemoryRateLimitStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.counts {
		if !now.Before(entry.expiresAt) {
			delete(s.counts, key)
			removed++
		}
	}
	return removed
}

// RedisClient defines the Redis operations needed by the rate limiter.
type RedisClient interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Get(ctx context.Context, key string) (string, error)
}

// RedisRateLimitStore is a Redis-based rate limit store.
type RedisRateLimitStore struct {
	client    RedisClient
	keyPrefix string
}

// NewRedisRateLimitStore creates a new Redis-based rate limit store.
func NewRedisRateLimitStore(client RedisClient, keyPrefix string) *RedisRateLimitStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRateLimitPrefix
	}
	return &RedisRateLimitStore{client: client, keyPrefix: keyPrefix}
}

// Increment increments the counter for the given key.
func (s *RedisRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := s.keyPrefix + key

	count, err := s.client.Incr(ctx, fullKey)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, fullKey, window); err != nil {
			return count, fmt.Errorf("failed to set expiration: %w", err)
		}
	}
	return count, nil
}

// GetCount returns the current count for the given key.
func (s *RedisRateLimitStore) GetCount(ctx context.Context, key string) (int64, error) {
	result, err := s.client.Get(ctx, s.keyPrefix+key)
	if err != nil || result == "" {
		return 0, nil //nolint:nilerr // a missing key reads as zero
	}

	count, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse count: %w", err)
	}
	return count, nil
}

// GetTTL returns the remaining TTL for the given key.
func (s *RedisRateLimitStore) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, s.keyPrefix+key)
}

// GoRedisClient adapts *redis.Client to RedisClient.
type GoRedisClient struct {
	client *redis.Client
}

// NewGoRedisClient wraps a go-redis client.
func NewGoRedisClient(client *redis.Client) *GoRedisClient {
	return &GoRedisClient{client: client}
}

// Incr implements RedisClient.
func (g *GoRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return g.client.Incr(ctx, key).Result()
}

// Expire implements RedisClient.
func (g *GoRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return g.client.Expire(ctx, key, expiration).Err()
}

// TTL implements RedisClient.
func (g *GoRedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return g.client.TTL(ctx, key).Result()
}

// Get implements RedisClient. A missing key reads as "".
func (g *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
