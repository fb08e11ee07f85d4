package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ovozber-backend/api"
	"ovozber-backend/cache"
	"ovozber-backend/config"
	"ovozber-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Controllers 需要注册到 /api 下的控制器
type Controllers struct {
	Health       *api.HealthController
	Users        *api.UserController
	Catalog      *api.CatalogController
	Votes        *api.VoteController
	Statistics   *api.StatisticsController
	Conversation *api.ConversationController
	Admin        *api.AdminController
	WebSocket    *websocket.Handler
}

// Limiters 限流器，Vote 为空时投票接口不做额外限制
type Limiters struct {
	Client cache.RateLimiter
	Vote   cache.RateLimiter
	Stats  *api.RateLimitStats
}

// BuildLimiters 按配置创建限流器。redis 为 nil 时只用进程内限流
func BuildLimiters(cfg config.RateLimitConfig, redis cache.RedisClient, log *slog.Logger) *Limiters {
	if !cfg.Enabled {
		return nil
	}

	local := cache.NewUserRateLimiter(
		cache.NewLocalRateLimiter(cfg.GlobalRate, cfg.GlobalBurst),
		cache.NewLocalRateLimiter(cfg.UserRate, cfg.UserBurst),
		log,
	)
	limits := &Limiters{Client: local, Stats: api.NewRateLimitStats()}
	if redis == nil {
		return limits
	}

	distributed := cache.NewUserRateLimiter(
		cache.NewTokenBucketRateLimiter(redis, "api:global", cfg.GlobalRate, cfg.GlobalBurst),
		cache.NewTokenBucketRateLimiter(redis, "api:user", cfg.UserRate, cfg.UserBurst),
		log,
	)
	limits.Client = cache.NewFallbackRateLimiter(distributed, local, log)
	if cfg.VoteLimit > 0 && cfg.VoteWindow > 0 {
		limits.Vote = cache.NewSlidingWindowRateLimiter(redis, "api:vote", cfg.VoteWindow, cfg.VoteLimit)
	}
	return limits
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(cfg *config.Config, ctrl Controllers, limits *Limiters, log *slog.Logger) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Admin-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: !allowsAnyOrigin(origins),
		MaxAge:           12 * time.Hour,
	}))

	apiGroup := router.Group("/api")
	var voteMiddleware []gin.HandlerFunc
	if limits != nil {
		apiGroup.Use(api.RateLimitMiddleware(limits.Client, api.ClientKey, limits.Stats, log))
		if limits.Vote != nil {
			voteMiddleware = append(voteMiddleware, api.RateLimitMiddleware(limits.Vote, api.IPKey, limits.Stats, log))
		}
	}

	ctrl.Health.RegisterRoutes(apiGroup)
	ctrl.Users.RegisterRoutes(apiGroup)
	ctrl.Catalog.RegisterRoutes(apiGroup)
	ctrl.Votes.RegisterRoutes(apiGroup, voteMiddleware...)
	ctrl.Statistics.RegisterRoutes(apiGroup)
	ctrl.Conversation.RegisterRoutes(apiGroup)
	ctrl.Admin.RegisterRoutes(apiGroup)
	if ctrl.WebSocket != nil {
		apiGroup.GET("/polls/:id/ws", ctrl.WebSocket.HandleConnection)
		apiGroup.GET("/polls/:id/live", ctrl.WebSocket.HandleSSE)
	}

	return router
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// RequestID 为每个请求分配 X-Request-ID，客户端已带上时沿用
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Header("X-Request-ID", id)
		ctx.Next()
	}
}

// RequestLogger 请求日志
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		log.Log(ctx.Request.Context(), level, "请求完成",
			"method", ctx.Request.Method,
			"path", ctx.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", ctx.ClientIP(),
			"request_id", ctx.GetString("request_id"),
		)
	}
}

// Server HTTP服务器的封装
type Server struct {
	*http.Server
	shutdownTimeout time.Duration
	log             *slog.Logger
	errs            chan error
}

// StartServer 在后台启动HTTP服务器
func StartServer(cfg config.ServerConfig, router http.Handler, log *slog.Logger) *Server {
	srv := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log,
		errs:            make(chan error, 1),
	}

	go func() {
		log.Info("服务器启动", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.errs <- err
		}
		close(srv.errs)
	}()
	return srv
}

// Errors 服务器异常退出时收到错误
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Stop 停止接收新请求并等待进行中的请求完成
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}
	s.log.Info("服务器已关闭")
	return nil
}
