package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// fixed window counter; returns {allowed, remaining, reset_unix}
var rateLimitScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local reset_time = (math.floor(now / window) + 1) * window

	local current = redis.call('INCR', key)
	if current == 1 then
		redis.call('EXPIRE', key, window)
	end

	if current > limit then
		return {0, 0, reset_time}
	end
	return {1, limit - current, reset_time}
`)

// localLimiter is the per-client token bucket used when Redis is unavailable.
// Buckets idle for longer than the window are full again and get dropped.
type localLimiter struct {
	mu        sync.Mutex
	every     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
	clients   map[string]*localClient
}

type localClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(limit int, window time.Duration) *localLimiter {
	return &localLimiter{
		every:     rate.Every(window / time.Duration(limit)),
		burst:     limit,
		window:    window,
		lastSweep: time.Now(),
		now:       time.Now,
		clients:   make(map[string]*localClient),
	}
}

func (l *localLimiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}
	cl, ok := l.clients[key]
	if !ok {
		cl = &localClient{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	l.mu.Unlock()
	return cl.limiter.AllowN(now, 1)
}

// sweep drops clients not seen for a full window; l.mu must be held
func (l *localLimiter) sweep(now time.Time) {
	for key, cl := range l.clients {
		if now.Sub(cl.lastSeen) >= l.window {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

// RedisRateLimit creates middleware for rate limiting requests using Redis.
// Requests are keyed by user when authenticated and by client IP otherwise.
// When redisClient is nil or Redis fails, an in-process limiter takes over.
func RedisRateLimit(redisClient *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if cfg.Limit <= 0 {
		cfg.Limit = 120
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Minute
	}
	fallback := newLocalLimiter(cfg.Limit, cfg.Window)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if userID, ok := UserID(c); ok {
			key = "user:" + strconv.Itoa(userID)
		}

		if !allow(c, redisClient, fallback, key, cfg, logger) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Try again later.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// allow consults Redis first and the local limiter when Redis is missing or failing
func allow(c *gin.Context, redisClient *redis.Client, fallback *localLimiter, key string, cfg config.RateLimitConfig, logger *zap.Logger) bool {
	if redisClient == nil {
		return fallback.Allow(key)
	}

	allowed, remaining, resetTime, err := checkRateLimit(c.Request.Context(), redisClient, key, cfg.Limit, cfg.Window)
	if err != nil {
		logger.Warn("Rate limit check failed, using local limiter", zap.Error(err), zap.String("key", key))
		return fallback.Allow(key)
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))
	if !allowed {
		c.Header("Retry-After", strconv.FormatInt(resetTime-time.Now().Unix(), 10))
	}
	return allowed
}

// checkRateLimit counts a request against key's current window
func checkRateLimit(ctx context.Context, redisClient *redis.Client, key string, limit int, window time.Duration) (bool, int, int64, error) {
	windowSecs := int64(window / time.Second)
	result, err := rateLimitScript.Run(ctx, redisClient,
		[]string{fmt.Sprintf("ratelimit:%s", key)},
		limit, windowSecs, time.Now().Unix(),
	).Result()
	if err != nil {
		return false, 0, 0, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit reply %v", result)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetTime, _ := values[2].(int64)
	return allowed == 1, int(remaining), resetTime, nil
}
