package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisCache creates middleware for caching successful GET responses in
// Redis. Entries are scoped to the authenticated user. A Redis failure is
// treated as a miss.
func RedisCache(redisClient *redis.Client, cfg config.CacheConfig, prefix string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip if caching is disabled or request method is not GET
		if redisClient == nil || !cfg.Enabled || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := generateCacheKey(c, prefix)

		cached, err := redisClient.Get(ctx, cacheKey).Bytes()
		if err == nil {
			logger.Debug("Cache hit",
				zap.String("path", c.Request.URL.Path),
				zap.String("cache_key", cacheKey))

			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			c.Abort()
			return
		}
		if err != redis.Nil {
			logger.Warn("Cache lookup failed", zap.Error(err), zap.String("cache_key", cacheKey))
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = writer
		c.Header("X-Cache", "MISS")

		c.Next()

		// Only cache successful responses
		if writer.Status() != http.StatusOK {
			return
		}
		if err := redisClient.Set(ctx, cacheKey, writer.body.Bytes(), cfg.Expiration).Err(); err != nil {
			logger.Warn("Failed to set cache",
				zap.Error(err),
				zap.String("cache_key", cacheKey))
			return
		}
		logger.Debug("Cache set",
			zap.String("path", c.Request.URL.Path),
			zap.String("cache_key", cacheKey),
			zap.Duration("duration", cfg.Expiration))
	}
}

// responseWriter captures the response body for caching
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write captures the response for caching
func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// generateCacheKey creates a unique cache key for a request
func generateCacheKey(c *gin.Context, prefix string) string {
	owner := "anon"
	if userID, ok := UserID(c); ok {
		owner = strconv.Itoa(userID)
	}

	hash := sha256.New()
	hash.Write([]byte(c.Request.URL.Path))
	if q := c.Request.URL.RawQuery; q != "" {
		hash.Write([]byte("?" + q))
	}
	return prefix + ":" + owner + ":" + hex.EncodeToString(hash.Sum(nil))
}
