package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"loyalty-hub/internal/api/response"
)

// SharedCounter is a cross-replica rate counter; kv.Client implements it.
type SharedCounter interface {
	AllowRate(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// Shared is optional; without it, or when it errors, limits are per replica.
	Shared SharedCounter
	Logger *zap.Logger
}

type localLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (l *localLimiters) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		// Unbounded growth is capped by resetting; a reset only forgives recent hits.
		if len(l.limiters) >= 10000 {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimit limits requests per caller: the authenticated user when present,
// otherwise the client IP. scope separates the budgets of different routes.
func RateLimit(scope string, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	local := &localLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(cfg.Window / time.Duration(cfg.Limit)),
		burst:    cfg.Limit,
	}

	return func(c *gin.Context) {
		key := scope + ":" + rateLimitSubject(c)

		allowed := true
		shared := false
		if cfg.Shared != nil {
			ok, _, err := cfg.Shared.AllowRate(c.Request.Context(), key, int64(cfg.Limit), cfg.Window)
			if err != nil {
				cfg.Logger.Warn("shared rate limiter unavailable, using local limiter",
					zap.String("scope", scope),
					zap.Error(err),
				)
			} else {
				allowed = ok
				shared = true
			}
		}
		if !shared {
			allowed = local.allow(key)
		}

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
			response.Fail(c, 429, response.ErrTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

func rateLimitSubject(c *gin.Context) string {
	if claims, ok := GetClaims(c); ok && claims.UserID != "" {
		return "user:" + claims.UserID
	}
	return "ip:" + c.ClientIP()
}
