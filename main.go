package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ovozber-backend/api"
	"ovozber-backend/cache"
	"ovozber-backend/config"
	"ovozber-backend/conversation"
	"ovozber-backend/database"
	"ovozber-backend/logging"
	"ovozber-backend/migrations"
	"ovozber-backend/mq"
	"ovozber-backend/repository"
	"ovozber-backend/routes"
	"ovozber-backend/service"
	"ovozber-backend/websocket"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("读取 .env 失败", "error", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close(db, log)

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn("Redis不可用，使用内存实现", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var store repository.Store = repository.NewGormStore(db)
	var catalogCache *cache.JSONCache
	if redisClient != nil {
		catalogCache = cache.NewJSONCache(redisClient, cfg.Redis.CatalogTTL)
		store = repository.NewCachedStore(store, catalogCache, log)
	}

	events := mq.NewAdapter(cfg.Kafka, redisClient, log)
	defer func() {
		if err := events.Close(); err != nil {
			log.Error("关闭事件总线失败", "error", err)
		}
	}()
	log.Info("事件总线就绪", "type", events.Kind())

	clock := service.SystemClock{}
	voteOpts := []service.VoteOption{service.WithEventPublisher(events)}
	if redisClient != nil {
		voteOpts = append(voteOpts, service.WithVoteLocker(cache.NewDistributedLockService(redisClient, cfg.Redis.VoteLockTTL, log)))
	}

	users := service.NewUserService(store, clock, log)
	catalog := service.NewCatalogService(store, clock)
	votes := service.NewVoteService(store, clock, log, voteOpts...)
	stats := service.NewStatisticsService(store, clock)

	hub := websocket.NewHub(log)
	go hub.Run(ctx)
	broadcaster := websocket.NewBroadcaster(hub, stats, log)
	if err := events.Subscribe(broadcaster.HandleVoteCast); err != nil {
		return err
	}

	machine := conversation.NewMachine(conversation.Deps{
		Users:    users,
		Catalog:  catalog,
		Voter:    votes,
		Sessions: sessionStore(redisClient, cfg),
		Clock:    clock,
	}, cfg.Conversation.DefaultLanguage, log)

	var redisStatus cache.RedisClient
	var invalidator api.CacheInvalidator
	if redisClient != nil {
		redisStatus = redisClient
		invalidator = catalogCache
	}
	limits := routes.BuildLimiters(cfg.RateLimit, redisStatus, log)
	var limitStats *api.RateLimitStats
	if limits != nil {
		limitStats = limits.Stats
	}

	router := routes.SetupRouter(cfg, routes.Controllers{
		Health:       api.NewHealthController(store, redisStatus, events),
		Users:        api.NewUserController(users),
		Catalog:      api.NewCatalogController(catalog),
		Votes:        api.NewVoteController(votes),
		Statistics:   api.NewStatisticsController(stats),
		Conversation: api.NewConversationController(machine),
		Admin:        api.NewAdminController(cfg.Server.AdminKey, invalidator, events, limitStats),
		WebSocket:    websocket.NewHandler(hub, broadcaster, cfg.Server.AllowedOrigins, log),
	}, limits, log)

	srv := routes.StartServer(cfg.Server, router, log)
	select {
	case <-ctx.Done():
		log.Info("收到退出信号，关闭服务器")
	case err := <-srv.Errors():
		if err != nil {
			return err
		}
	}
	return srv.Stop(context.Background())
}

func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db, log)
		return nil, err
	}
	if n, err := migrations.BackfillCandidatePoll(db, log); err != nil {
		database.Close(db, log)
		return nil, err
	} else if n > 0 {
		log.Info("候选人 poll_id 已补齐", "rows", n)
	}
	if orphans, err := migrations.OrphanCandidates(db); err == nil && orphans > 0 {
		log.Warn("存在无法确定所属投票的候选人", "count", orphans)
	}
	if cfg.IsDevelopment() {
		if err := database.SeedSampleData(ctx, db, log); err != nil {
			log.Warn("创建示例数据失败", "error", err)
		}
	}
	return db, nil
}

func sessionStore(client *redis.Client, cfg *config.Config) cache.SessionStore {
	if client == nil {
		return cache.NewMemorySessionStore(cfg.Conversation.SessionTTL)
	}
	return cache.NewRedisSessionStore(client, cfg.Conversation.SessionTTL)
}
