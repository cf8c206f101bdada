package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/campuscms/campuscms/pkg/auth"
)

// RateLimitConfig defines a token bucket rate limit
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// PublicRateLimitConfig limits anonymous traffic to the public site API
func PublicRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 120,
		WindowDuration:    time.Minute,
		BurstSize:         20,
	}
}

// EditorRateLimitConfig limits signed-in CMS traffic
func EditorRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// RateLimiter implements an in-memory token bucket per key. Buckets are
// process local; the Redis-backed limiter shares counts across replicas.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = PublicRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes a token for the key if one is available
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     rl.config.RequestsPerWindow + rl.config.BurstSize,
			lastUpdate: time.Now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)

	refill := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens += refill
		max := rl.config.RequestsPerWindow + rl.config.BurstSize
		if b.tokens > max {
			b.tokens = max
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the tokens left for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		return rl.config.RequestsPerWindow + rl.config.BurstSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Cleanup drops buckets idle for two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup runs Cleanup once per window until the context ends
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimit wraps an HTTP handler with per-caller rate limiting: signed-in
// users are keyed by user ID against the editor limit, anonymous traffic
// by client IP against the public limit. With Redis the counters are
// shared across replicas; the local buckets remain the fallback.
type RateLimit struct {
	editorLimiter *RateLimiter
	publicLimiter *RateLimiter
	editorShared  *DistributedRateLimiter
	publicShared  *DistributedRateLimiter
}

// NewRateLimit creates the rate limit middleware with default tiers
func NewRateLimit() *RateLimit {
	return &RateLimit{
		editorLimiter: NewRateLimiter(EditorRateLimitConfig()),
		publicLimiter: NewRateLimiter(PublicRateLimitConfig()),
	}
}

// NewRateLimitWithRedis creates the middleware with Redis-shared counters.
// A nil client behaves like NewRateLimit.
func NewRateLimitWithRedis(client *redis.Client) *RateLimit {
	m := NewRateLimit()
	if client != nil {
		m.editorShared = NewDistributedRateLimiter(client, EditorRateLimitConfig(), "ratelimit:editor")
		m.publicShared = NewDistributedRateLimiter(client, PublicRateLimitConfig(), "ratelimit:public")
	}
	return m
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var key string
		var limiter *RateLimiter
		var shared *DistributedRateLimiter

		if identity := auth.IdentityFromContext(r.Context()); identity != nil {
			key = fmt.Sprintf("user:%d", identity.UserID)
			limiter = m.editorLimiter
			shared = m.editorShared
		} else {
			key = "ip:" + clientAddr(r)
			limiter = m.publicLimiter
			shared = m.publicShared
		}

		allowed, remaining := m.allow(r, key, shared, limiter)
		if !allowed {
			retryAfter := limiter.config.WindowDuration.Seconds()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		next.ServeHTTP(w, r)
	})
}

// allow consults the shared limiter first and falls back to the local
// buckets when Redis is unreachable
func (m *RateLimit) allow(r *http.Request, key string, shared *DistributedRateLimiter, local *RateLimiter) (bool, int) {
	if shared != nil {
		ok, err := shared.Allow(r.Context(), key)
		if err == nil {
			remaining, rerr := shared.Remaining(r.Context(), key)
			if rerr != nil {
				remaining = 0
			}
			return ok, remaining
		}
	}
	ok := local.Allow(key)
	return ok, local.Remaining(key)
}

func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
