package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTokens map[string]int

func (s stubTokens) ValidateAccessToken(token string) (*service.Claims, error) {
	if id, ok := s[token]; ok {
		return &service.Claims{UserID: id, TokenType: service.TokenTypeAccess}, nil
	}
	return nil, errors.New("bad token")
}

func perform(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(AuthMiddleware(stubTokens{"good": 42}, zap.NewNop()))
	r.GET("/me", func(c *gin.Context) {
		id, ok := UserID(c)
		assert.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	w := perform(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Authorization header required"}`, w.Body.String())

	w = perform(r, http.MethodGet, "/me", http.Header{"Authorization": {"Token good"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid authorization format"}`, w.Body.String())

	w = perform(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer good"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":42}`, w.Body.String())
}

func TestLoggerLevelsAndRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) {
		c.Set("userID", 7)
		c.Status(http.StatusOK)
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := perform(r, http.MethodGet, "/ok?x=1", http.Header{RequestIDHeader: {"req-1"}})
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	w = perform(r, http.MethodGet, "/bad", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	perform(r, http.MethodGet, "/boom", nil)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Request completed", entries[0].Message)
	assert.Equal(t, "/ok?x=1", entries[0].ContextMap()["path"])
	assert.Equal(t, int64(7), entries[0].ContextMap()["user_id"])
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "Server error", entries[2].Message)
}

// unreachableRedis points at a closed port so every command fails fast.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisRateLimit_FallsBackToLocalLimiter(t *testing.T) {
	for name, client := range map[string]*redis.Client{"nil client": nil, "unreachable": unreachableRedis()} {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.Use(RedisRateLimit(client, config.RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute}, zap.NewNop()))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
			assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
			w := perform(r, http.MethodGet, "/x", nil)
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.JSONEq(t, `{"error":"Rate limit exceeded. Try again later."}`, w.Body.String())
		})
	}
}

func TestRedisRateLimit_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(RedisRateLimit(nil, config.RateLimitConfig{Enabled: false, Limit: 1, Window: time.Minute}, zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
	}
}

func TestRedisRateLimit_KeysAuthenticatedCallersByUser(t *testing.T) {
	r := gin.New()
	r.Use(AuthMiddleware(stubTokens{"alice": 1, "bob": 2}, zap.NewNop()))
	r.Use(RedisRateLimit(nil, config.RateLimitConfig{Enabled: true, Limit: 1, Window: time.Minute}, zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	bearer := func(token string) http.Header {
		return http.Header{"Authorization": []string{"Bearer " + token}}
	}

	// same client address, separate budgets
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", bearer("alice")).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", bearer("bob")).Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodGet, "/x", bearer("alice")).Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodGet, "/x", bearer("bob")).Code)
}

func TestLocalLimiter_DropsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	l := newLocalLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	assert.True(t, l.Allow("ip:10.0.0.1"))
	assert.True(t, l.Allow("ip:10.0.0.2"))
	require.Len(t, l.clients, 2)

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("ip:10.0.0.2"))

	now = now.Add(45 * time.Second)
	assert.True(t, l.Allow("ip:10.0.0.3"))
	assert.Len(t, l.clients, 2)
	assert.NotContains(t, l.clients, "ip:10.0.0.1")
	assert.Contains(t, l.clients, "ip:10.0.0.2")
}

func TestRedisCache_MissPassesThrough(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(RedisCache(unreachableRedis(), config.CacheConfig{Enabled: true, Expiration: time.Minute}, "test", zap.NewNop()))
	r.GET("/data", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"n": calls})
	})

	w := perform(r, http.MethodGet, "/data", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())

	perform(r, http.MethodGet, "/data", nil)
	assert.Equal(t, 2, calls)
}

func TestGenerateCacheKey_ScopedByUserAndQuery(t *testing.T) {
	key := func(target string, userID int) string {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, target, nil)
		if userID != 0 {
			c.Set("userID", userID)
		}
		return generateCacheKey(c, "p")
	}

	assert.Equal(t, key("/a?x=1", 1), key("/a?x=1", 1))
	assert.NotEqual(t, key("/a?x=1", 1), key("/a?x=2", 1))
	assert.NotEqual(t, key("/a?x=1", 1), key("/a?x=1", 2))
	assert.Contains(t, key("/a", 0), "p:anon:")
}
