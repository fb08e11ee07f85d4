package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口，key 区分限流对象（用户、IP等）
type RateLimiter interface {
	// Allow 判断请求是否允许通过
	Allow(ctx context.Context, key string) (bool, error)
}

// 令牌桶算法的Lua脚本，时间单位为毫秒
const tokenBucketScript = `
local tokens_key = KEYS[1] .. ":tokens"
local timestamp_key = KEYS[1] .. ":ts"
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or now)

-- 按经过的时间补充令牌
local elapsed = math.max(0, now - last_update) / 1000
local new_tokens = math.min(burst, tokens + elapsed * rate)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1
redis.call("setex", tokens_key, ttl, tostring(new_tokens))
redis.call("setex", timestamp_key, ttl, tostring(now))
return 1
`

// TokenBucketRateLimiter 基于 Redis 的令牌桶限流器，多实例共享额度
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	prefix      string
	rate        int // 每秒生成的令牌数量
	burst       int // 令牌桶最大容量
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client RedisClient, prefix string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("rate_limit:%s", prefix),
		rate:        rate,
		burst:       burst,
	}
}

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	// 桶空到装满所需时间的两倍，至少2秒
	ttl := 2
	if l.rate > 0 {
		if refill := (l.burst/l.rate + 1) * 2; refill > ttl {
			ttl = refill
		}
	}

	now := time.Now().UnixMilli()
	result, err := l.redisClient.Eval(ctx, tokenBucketScript, []string{l.prefix + ":" + key}, now, l.rate, l.burst, ttl).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// SlidingWindowRateLimiter 滑动窗口限流器，限制窗口内的请求次数
type SlidingWindowRateLimiter struct {
	redisClient RedisClient
	prefix      string
	windowSize  time.Duration // 窗口大小
	limit       int           // 窗口内允许的最大请求数
}

// NewSlidingWindowRateLimiter 创建新的滑动窗口限流器
func NewSlidingWindowRateLimiter(client RedisClient, prefix string, windowSize time.Duration, limit int) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("sliding_window:%s", prefix),
		windowSize:  windowSize,
		limit:       limit,
	}
}

// Allow 判断请求是否允许通过
func (l *SlidingWindowRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	redisKey := l.prefix + ":" + key
	now := time.Now().UnixMilli()
	windowStart := now - l.windowSize.Milliseconds()
	requestID := uuid.NewString()

	// 使用有序集合记录请求
	pipe := l.redisClient.Pipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: requestID})
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.windowSize*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	// 超过限制时撤回本次记录
	if count.Val() > int64(l.limit) {
		l.redisClient.ZRem(ctx, redisKey, requestID)
		return false, nil
	}
	return true, nil
}

// LocalRateLimiter 进程内令牌桶，Redis 不可用时使用
type LocalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter(perSecond, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow 判断请求是否允许通过
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}

// UserRateLimiter 用户级别限流器，先检查全局额度再检查用户额度
type UserRateLimiter struct {
	global  RateLimiter
	perUser RateLimiter
	log     *slog.Logger
}

// NewUserRateLimiter 创建用户级别限流器
func NewUserRateLimiter(global, perUser RateLimiter, log *slog.Logger) *UserRateLimiter {
	return &UserRateLimiter{global: global, perUser: perUser, log: log}
}

// Allow 判断用户请求是否允许通过
func (l *UserRateLimiter) Allow(ctx context.Context, userKey string) (bool, error) {
	allowed, err := l.global.Allow(ctx, "global")
	if err != nil {
		l.log.Warn("全局限流检查失败", "error", err)
		return false, err
	}
	if !allowed {
		return false, nil
	}
	return l.perUser.Allow(ctx, userKey)
}

// FallbackRateLimiter 主限流器出错时改用备用限流器
type FallbackRateLimiter struct {
	primary  RateLimiter
	fallback RateLimiter
	log      *slog.Logger
}

// NewFallbackRateLimiter 创建带降级的限流器
func NewFallbackRateLimiter(primary, fallback RateLimiter, log *slog.Logger) *FallbackRateLimiter {
	return &FallbackRateLimiter{primary: primary, fallback: fallback, log: log}
}

// Allow 判断请求是否允许通过
func (l *FallbackRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := l.primary.Allow(ctx, key)
	if err == nil {
		return allowed, nil
	}
	l.log.Warn("限流器降级为本地模式", "key", key, "error", err)
	return l.fallback.Allow(ctx, key)
}
