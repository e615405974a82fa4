package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// RateLimitStrategy selects how requests are grouped into buckets
type RateLimitStrategy string

const (
	// StrategyIP keeps one bucket per client IP
	StrategyIP RateLimitStrategy = "ip"

	// StrategyGlobal shares one bucket across all clients
	StrategyGlobal RateLimitStrategy = "global"

	// StrategyCustom uses RateLimitConfig.KeyExtractor
	StrategyCustom RateLimitStrategy = "custom"
)

// RateLimitConfig defines configuration for request pacing
type RateLimitConfig struct {
	// Routes sharing a BucketName share their buckets
	BucketName string

	// RequestsPerSecond is the steady rate each bucket lets through
	RequestsPerSecond int

	// Slack is the number of requests that may be let through back to back
	// after a quiet period. Zero disables slack.
	Slack int

	// MaxWaiting caps how many requests may queue on one bucket.
	// Requests over the cap are rejected with 429. Zero means no cap.
	MaxWaiting int

	Strategy RateLimitStrategy

	// KeyExtractor is used when Strategy is StrategyCustom
	KeyExtractor func(*http.Request) (string, error)
}

// DefaultBucketIdleTimeout is how long an unused bucket is kept
const DefaultBucketIdleTimeout = 10 * time.Minute

// RateLimiter paces requests using Uber's leaky-bucket limiter.
// Requests under the rate pass straight through; requests over it wait
// for their slot instead of being dropped.
//
// Buckets idle for IdleTimeout with nobody waiting on them are evicted, at
// most once per IdleTimeout, when a new bucket is created.
type RateLimiter struct {
	// IdleTimeout defaults to DefaultBucketIdleTimeout
	IdleTimeout time.Duration

	buckets   sync.Map // map[string]*bucket
	mu        sync.Mutex
	lastSweep time.Time
	now       func() time.Time
	opts      []ratelimit.Option
}

type bucket struct {
	limiter  ratelimit.Limiter
	waiting  atomic.Int64
	lastUsed atomic.Int64 // unix nanoseconds
}

// NewRateLimiter creates a RateLimiter. opts are passed to every
// ratelimit.New call, which lets tests inject a clock.
func NewRateLimiter(opts ...ratelimit.Option) *RateLimiter {
	return &RateLimiter{
		IdleTimeout: DefaultBucketIdleTimeout,
		now:         time.Now,
		opts:        opts,
	}
}

// getBucket gets or creates the bucket for key
func (l *RateLimiter) getBucket(key string, config *RateLimitConfig) *bucket {
	if b, ok := l.buckets.Load(key); ok {
		return b.(*bucket)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring lock
	if b, ok := l.buckets.Load(key); ok {
		return b.(*bucket)
	}

	l.evictIdleLocked()

	rps := config.RequestsPerSecond
	if rps < 1 {
		rps = 1
	}
	opts := append([]ratelimit.Option{}, l.opts...)
	if config.Slack > 0 {
		opts = append(opts, ratelimit.WithSlack(config.Slack))
	} else {
		opts = append(opts, ratelimit.WithoutSlack)
	}

	b := &bucket{limiter: ratelimit.New(rps, opts...)}
	b.lastUsed.Store(l.now().UnixNano())
	l.buckets.Store(key, b)
	return b
}

// evictIdleLocked drops idle buckets. l.mu must be held.
func (l *RateLimiter) evictIdleLocked() {
	ttl := l.IdleTimeout
	if ttl <= 0 {
		ttl = DefaultBucketIdleTimeout
	}
	now := l.now()
	if now.Sub(l.lastSweep) < ttl {
		return
	}
	l.lastSweep = now

	cutoff := now.Add(-ttl).UnixNano()
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		if b.waiting.Load() == 0 && b.lastUsed.Load() < cutoff {
			l.buckets.Delete(key)
		}
		return true
	})
}

// bucketCount reports how many buckets are cached
func (l *RateLimiter) bucketCount() int {
	n := 0
	l.buckets.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Wait blocks until key may proceed. It returns false without waiting when
// MaxWaiting requests are already queued on the bucket.
func (l *RateLimiter) Wait(key string, config *RateLimitConfig) bool {
	b := l.getBucket(key, config)

	if n := b.waiting.Add(1); config.MaxWaiting > 0 && n > int64(config.MaxWaiting) {
		b.waiting.Add(-1)
		return false
	}
	defer b.waiting.Add(-1)

	b.lastUsed.Store(l.now().UnixNano())
	b.limiter.Take()
	return true
}

// RateLimit creates a middleware that paces requests per bucket
func RateLimit(config *RateLimitConfig, limiter *RateLimiter, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if config == nil || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := rateLimitKey(r, config)
			if err != nil {
				logger.Error("Failed to extract rate limit key",
					zap.Error(err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				WriteError(w, r, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			if !limiter.Wait(config.BucketName+":"+key, config) {
				logger.Warn("Rate limit exceeded",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("key", key),
					zap.Int("requests_per_second", config.RequestsPerSecond),
				)
				w.Header().Set("Retry-After", "1")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerSecond))
				WriteError(w, r, http.StatusTooManyRequests, "Too Many Requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request, config *RateLimitConfig) (string, error) {
	switch config.Strategy {
	case StrategyGlobal:
		return "global", nil
	case StrategyCustom:
		if config.KeyExtractor != nil {
			return config.KeyExtractor(r)
		}
	}
	return ClientIP(r), nil
}
