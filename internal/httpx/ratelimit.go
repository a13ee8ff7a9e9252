package httpx

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/logger"
)

const rateLimitMessage = "Too many requests from this IP, please try again later."

// Limiter counts hits per key in a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (remaining int, allowed bool, err error)
	Limit() int
}

// RedisLimiter shares counters between instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: keyPrefix + "ratelimit:", limit: limit, window: window}
}

func (l *RedisLimiter) Limit() int { return l.limit }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (int, bool, error) {
	k := l.prefix + key
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, true, err
	}
	n := int(incr.Val())
	remaining := l.limit - n
	if remaining < 0 {
		remaining = 0
	}
	return remaining, n <= l.limit, nil
}

// MemoryLimiter is the single process fallback.
type MemoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	window  time.Duration
	now     func() time.Time
}

type window struct {
	hits  int
	start time.Time
}

func NewMemoryLimiter(limit int, d time.Duration) *MemoryLimiter {
	return &MemoryLimiter{clients: make(map[string]*window), limit: limit, window: d, now: time.Now}
}

func (l *MemoryLimiter) Limit() int { return l.limit }

func (l *MemoryLimiter) Allow(_ context.Context, key string) (int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.sweep(now)
		w = &window{start: now}
		l.clients[key] = w
	}
	w.hits++
	remaining := l.limit - w.hits
	if remaining < 0 {
		remaining = 0
	}
	return remaining, w.hits <= l.limit, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.clients {
		if now.Sub(w.start) >= l.window*2 {
			delete(l.clients, k)
		}
	}
}

// RateLimit rejects callers over the limit. Limiter failures let the request through.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		remaining, allowed, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			Fail(c, TooManyRequests(rateLimitMessage))
			return
		}
		c.Next()
	}
}
