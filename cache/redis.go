package cache

import (
	"context"
	"fmt"
	"log/slog"

	"ovozber-backend/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 创建 Redis 客户端并测试连接
//
// 未配置地址时返回 ErrRedisNotAvailable，调用方改用内存实现。
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrRedisNotAvailable
	}

	log.Info("初始化Redis连接", "addr", cfg.Addr)
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.DialTimeout,
		PoolSize:    cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisNotAvailable, err)
	}

	log.Info("Redis连接初始化成功")
	return client, nil
}

// Ping 检查 Redis 状态，client 为 nil 时视为未启用
func Ping(ctx context.Context, client RedisClient) error {
	if client == nil {
		return ErrRedisNotAvailable
	}
	return client.Ping(ctx).Err()
}
