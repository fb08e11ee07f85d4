package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"ovozber-backend/cache"

	"github.com/gin-gonic/gin"
)

// KeyFunc 从请求中取限流键
type KeyFunc func(ctx *gin.Context) string

// ClientKey 优先使用 X-User-ID，其次客户端IP
func ClientKey(ctx *gin.Context) string {
	if userID := strings.TrimSpace(ctx.GetHeader("X-User-ID")); userID != "" {
		return "user:" + userID
	}
	return "ip:" + ctx.ClientIP()
}

// IPKey 按客户端IP
func IPKey(ctx *gin.Context) string {
	return "ip:" + ctx.ClientIP()
}

// RateLimitStats 限流统计
type RateLimitStats struct {
	mu       sync.Mutex
	total    int64
	allowed  int64
	rejected int64
	byKey    map[string]int64
}

// NewRateLimitStats 创建限流统计
func NewRateLimitStats() *RateLimitStats {
	return &RateLimitStats{byKey: make(map[string]int64)}
}

func (s *RateLimitStats) record(key string, allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if allowed {
		s.allowed++
		return
	}
	s.rejected++
	s.byKey[key]++
}

// Snapshot 统计快照，rejected_by_key 只记录被拒绝过的键
func (s *RateLimitStats) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := make(map[string]int64, len(s.byKey))
	for k, v := range s.byKey {
		byKey[k] = v
	}
	return map[string]interface{}{
		"total":           s.total,
		"allowed":         s.allowed,
		"rejected":        s.rejected,
		"rejected_by_key": byKey,
	}
}

// RateLimitMiddleware 限流中间件，limiter 出错时按拒绝处理
func RateLimitMiddleware(limiter cache.RateLimiter, key KeyFunc, stats *RateLimitStats, log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		k := key(ctx)
		allowed, err := limiter.Allow(ctx.Request.Context(), k)
		if err != nil {
			log.Warn("限流检查失败", "key", k, "error", err)
			allowed = false
		}
		if stats != nil {
			stats.record(k, allowed)
		}
		if !allowed {
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests, please try again later"})
			return
		}
		ctx.Next()
	}
}
