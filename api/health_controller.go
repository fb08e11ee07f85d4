package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"ovozber-backend/cache"

	"github.com/gin-gonic/gin"
)

// Version 应用版本，可通过构建参数注入
var Version = "0.1.0"

// Pinger 数据库连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventBusInfo 事件总线状态
type EventBusInfo interface {
	Kind() string
	Stats(ctx context.Context) map[string]int64
}

// SystemInfo 系统状态
type SystemInfo struct {
	Status       string           `json:"status"`
	Version      string           `json:"version"`
	Uptime       string           `json:"uptime"`
	StartTime    time.Time        `json:"start_time"`
	CurrentTime  time.Time        `json:"current_time"`
	GoVersion    string           `json:"go_version"`
	NumGoroutine int              `json:"num_goroutine"`
	NumCPU       int              `json:"num_cpu"`
	DBStatus     string           `json:"db_status"`
	RedisStatus  string           `json:"redis_status"`
	EventBus     string           `json:"event_bus,omitempty"`
	Queues       map[string]int64 `json:"queues,omitempty"`
}

// HealthController 健康检查
type HealthController struct {
	db        Pinger
	redis     cache.RedisClient
	events    EventBusInfo
	startTime time.Time
}

// NewHealthController redis 和 events 可以为 nil
func NewHealthController(db Pinger, redis cache.RedisClient, events EventBusInfo) *HealthController {
	return &HealthController{db: db, redis: redis, events: events, startTime: time.Now()}
}

// RegisterRoutes 注册健康检查路由
func (c *HealthController) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/health", c.HealthCheck)
	api.GET("/status", c.SystemStatus)
}

// HealthCheck 存活检查
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 数据库、Redis、事件总线状态，数据库不可用时返回 503
func (c *HealthController) SystemStatus(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	info := SystemInfo{
		Status:       "ok",
		Version:      Version,
		Uptime:       time.Since(c.startTime).Round(time.Second).String(),
		StartTime:    c.startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     "ok",
		RedisStatus:  "disabled",
	}

	if err := c.db.Ping(reqCtx); err != nil {
		info.Status = "degraded"
		info.DBStatus = "error"
	}
	if c.redis != nil {
		info.RedisStatus = "ok"
		if err := cache.Ping(reqCtx, c.redis); err != nil {
			info.RedisStatus = "error"
		}
	}
	if c.events != nil {
		info.EventBus = c.events.Kind()
		info.Queues = c.events.Stats(reqCtx)
	}

	status := http.StatusOK
	if info.DBStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, info)
}
