package mq

import (
	"context"
	"errors"
	"log/slog"

	"ovozber-backend/config"

	"github.com/redis/go-redis/v9"
)

// 事件总线类型
const (
	KindKafka  = "kafka"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// ErrDeadLetterUnsupported 当前总线没有死信队列
var ErrDeadLetterUnsupported = errors.New("dead letter queue not supported by this bus")

// Adapter 按可用组件选择事件总线：Kafka 优先，其次 Redis 队列，最后进程内
type Adapter struct {
	Bus
	kind string
}

// NewAdapter 创建适配器，redisClient 为 nil 表示 Redis 不可用
func NewAdapter(cfg config.KafkaConfig, redisClient *redis.Client, log *slog.Logger) *Adapter {
	if len(cfg.Brokers) > 0 {
		bus, err := NewKafkaBus(cfg, log)
		if err == nil {
			return &Adapter{Bus: bus, kind: KindKafka}
		}
		log.Warn("Kafka初始化失败，尝试Redis队列", "error", err)
	}

	if redisClient != nil {
		log.Info("使用Redis消息队列")
		return &Adapter{Bus: NewRedisQueue(redisClient, DefaultRedisQueueOptions(), log), kind: KindRedis}
	}

	log.Info("使用进程内事件总线")
	return &Adapter{Bus: NewMemoryBus(0, log), kind: KindMemory}
}

// Kind 当前使用的总线类型
func (a *Adapter) Kind() string {
	return a.kind
}

// QueueStats 总线类型和计数
func (a *Adapter) QueueStats(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"type":   a.kind,
		"queues": a.Stats(ctx),
	}
}

// RetryDeadLetters 仅 Redis 队列支持
func (a *Adapter) RetryDeadLetters(ctx context.Context) (int, error) {
	if q, ok := a.Bus.(*RedisQueue); ok {
		return q.RetryDeadLetters(ctx)
	}
	return 0, ErrDeadLetterUnsupported
}
