package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// endpointClass buckets requests for per-IP limiting.
type endpointClass string

const (
	classRegister endpointClass = "register"
	classLogin    endpointClass = "login"
	classStudent  endpointClass = "student"
)

// RateLimitConfig tunes the per-IP and global request limits. Limits are
// requests per window, zero disables the class.
type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int

	RegisterLimit int
	LoginLimit    int
	StudentLimit  int
	Window        time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

type classStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type rateLimiter struct {
	global *tokenBucket
	limits map[endpointClass]int
	window time.Duration
	store  classStore

	mu      sync.Mutex
	buckets map[string]*ipLimiter
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		limits: map[endpointClass]int{
			classRegister: cfg.RegisterLimit,
			classLogin:    cfg.LoginLimit,
			classStudent:  cfg.StudentLimit,
		},
		window:  cfg.Window,
		buckets: make(map[string]*ipLimiter),
	}
	if rl.window <= 0 {
		rl.window = time.Minute
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if cfg.RedisAddr != "" {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (rl *rateLimiter) AllowRequest() bool {
	if rl == nil || rl.global == nil {
		return true
	}
	return rl.global.Allow()
}

// Allow applies the per-IP limit for the endpoint class. A Redis store, when
// configured, makes the window shared across instances; otherwise each
// instance keeps local token buckets.
func (rl *rateLimiter) Allow(ctx context.Context, class endpointClass, ip string) (bool, time.Duration, error) {
	if rl == nil {
		return true, 0, nil
	}
	limit := rl.limits[class]
	if limit <= 0 {
		return true, 0, nil
	}
	if ip == "" {
		ip = "unknown"
	}
	if rl.store != nil {
		key := fmt.Sprintf("coursecast:ratelimit:%s:%s", class, ip)
		return rl.store.Allow(ctx, key, limit, rl.window)
	}

	key := string(class) + ":" + ip
	rl.mu.Lock()
	limiter, exists := rl.buckets[key]
	if !exists {
		rate := float64(limit) / rl.window.Seconds()
		limiter = &ipLimiter{bucket: newTokenBucket(rate, limit)}
		rl.buckets[key] = limiter
	}
	limiter.lastSeen = time.Now()
	rl.cleanupLocked()
	rl.mu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (rl *rateLimiter) cleanupLocked() {
	if len(rl.buckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * rl.window)
	for key, limiter := range rl.buckets {
		if limiter.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// classify maps a request to its endpoint class, or "" when unlimited.
func classify(r *http.Request) endpointClass {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/api/auth/register":
		return classRegister
	case r.Method == http.MethodPost && path == "/api/auth/login":
		return classLogin
	case strings.HasPrefix(path, "/api/subscriptions"):
		return classStudent
	default:
		return ""
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
