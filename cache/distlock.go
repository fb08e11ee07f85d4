package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DistributedLockService 分布式锁服务
type DistributedLockService struct {
	rs     *redsync.Redsync
	expiry time.Duration
	log    *slog.Logger
}

// NewDistributedLockService 创建分布式锁服务
func NewDistributedLockService(client *redis.Client, expiry time.Duration, log *slog.Logger) *DistributedLockService {
	pool := goredis.NewPool(client)
	return &DistributedLockService{
		rs:     redsync.New(pool),
		expiry: expiry,
		log:    log,
	}
}

// Lock 获取锁，短暂重试后仍失败返回 ErrLockNotAcquired
//
// 返回的 unlock 可以安全地多次调用。
func (s *DistributedLockService) Lock(ctx context.Context, name string) (func(), error) {
	mutex := s.rs.NewMutex("lock:"+name,
		redsync.WithExpiry(s.expiry),
		redsync.WithTries(5),                        // 最大重试次数
		redsync.WithRetryDelay(50*time.Millisecond), // 重试延迟
		redsync.WithDriftFactor(0.01),               // 时钟漂移因子
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, name, err)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// 请求取消后也要释放
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			s.log.Warn("释放分布式锁失败", "lock", name, "error", err)
		}
	}, nil
}

// WithLock 在锁内执行操作
func (s *DistributedLockService) WithLock(ctx context.Context, name string, action func() error) error {
	unlock, err := s.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()
	return action()
}
