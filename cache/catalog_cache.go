package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// 缓存时间抖动系数，防止同时失效
const jitterFactor = 0.2

// JSONCache 以 JSON 形式缓存数据
type JSONCache struct {
	redisClient RedisClient
	ttl         time.Duration
}

// NewJSONCache 创建 JSON 缓存
func NewJSONCache(client RedisClient, ttl time.Duration) *JSONCache {
	return &JSONCache{redisClient: client, ttl: ttl}
}

// Load 读取缓存，未命中返回 false
func (c *JSONCache) Load(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	data, err := c.redisClient.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询缓存失败: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("解析缓存数据失败: %w", err)
	}
	return true, nil
}

// Save 写入缓存，过期时间带随机抖动
func (c *JSONCache) Save(ctx context.Context, key string, value interface{}) error {
	if c.redisClient == nil {
		return ErrRedisNotAvailable
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化缓存数据失败: %w", err)
	}
	return c.redisClient.Set(ctx, key, data, withJitter(c.ttl)).Err()
}

// Invalidate 删除缓存
func (c *JSONCache) Invalidate(ctx context.Context, keys ...string) error {
	if c.redisClient == nil {
		return ErrRedisNotAvailable
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redisClient.Del(ctx, keys...).Err()
}

func withJitter(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl) * (1 + jitterFactor*(0.5-rand.Float64())))
}
