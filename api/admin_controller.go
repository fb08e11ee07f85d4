package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"ovozber-backend/mq"
	"ovozber-backend/repository"

	"github.com/gin-gonic/gin"
)

// CacheInvalidator 删除缓存键
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// DeadLetterRetrier 死信重投
type DeadLetterRetrier interface {
	QueueStats(ctx context.Context) map[string]interface{}
	RetryDeadLetters(ctx context.Context) (int, error)
}

// InvalidateCacheInput 要删除的缓存键
type InvalidateCacheInput struct {
	Keys []string `json:"keys" binding:"required,min=1"`
}

// AdminController 运维接口，需要 X-Admin-Key
type AdminController struct {
	adminKey string
	cache    CacheInvalidator
	events   DeadLetterRetrier
	limits   *RateLimitStats
}

// NewAdminController adminKey 为空时所有运维接口返回 403
func NewAdminController(adminKey string, cache CacheInvalidator, events DeadLetterRetrier, limits *RateLimitStats) *AdminController {
	return &AdminController{adminKey: adminKey, cache: cache, events: events, limits: limits}
}

// RegisterRoutes 注册运维路由
func (c *AdminController) RegisterRoutes(api *gin.RouterGroup) {
	admin := api.Group("/admin", c.requireKey)
	{
		admin.POST("/cache/invalidate", c.InvalidateCache)
		admin.GET("/events", c.EventStats)
		admin.POST("/events/retry-dead-letters", c.RetryDeadLetters)
		admin.GET("/ratelimit/stats", c.RateLimitStats)
	}
}

func (c *AdminController) requireKey(ctx *gin.Context) {
	key := ctx.GetHeader("X-Admin-Key")
	if c.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(c.adminKey)) != 1 {
		ctx.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Invalid admin key"})
		return
	}
	ctx.Next()
}

// InvalidateCache 删除目录缓存，数据库中的目录被直接修改后调用
//
// 只接受 catalog: 前缀的键，会话、投票锁和限流计数不能从这里删除。
func (c *AdminController) InvalidateCache(ctx *gin.Context) {
	if c.cache == nil {
		ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Cache is not enabled"})
		return
	}

	var input InvalidateCacheInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	for _, key := range input.Keys {
		if !strings.HasPrefix(key, repository.CatalogKeyPrefix) || len(key) == len(repository.CatalogKeyPrefix) {
			ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Only catalog cache keys can be invalidated: " + key})
			return
		}
	}

	if err := c.cache.Invalidate(ctx.Request.Context(), input.Keys...); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Failed to invalidate cache: " + err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "keys": input.Keys})
}

// EventStats 事件总线队列统计
func (c *AdminController) EventStats(ctx *gin.Context) {
	if c.events == nil {
		ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Event bus is not enabled"})
		return
	}
	ctx.JSON(http.StatusOK, c.events.QueueStats(ctx.Request.Context()))
}

// RetryDeadLetters 死信消息移回主队列
func (c *AdminController) RetryDeadLetters(ctx *gin.Context) {
	if c.events == nil {
		ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Event bus is not enabled"})
		return
	}

	moved, err := c.events.RetryDeadLetters(ctx.Request.Context())
	if errors.Is(err, mq.ErrDeadLetterUnsupported) {
		ctx.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "moved": moved})
}

// RateLimitStats 限流统计
func (c *AdminController) RateLimitStats(ctx *gin.Context) {
	if c.limits == nil {
		ctx.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	stats := c.limits.Snapshot()
	stats["enabled"] = true
	ctx.JSON(http.StatusOK, stats)
}
