package cache

import "errors"

// 调用方用 errors.Is 判断，Redis 不可用时改走内存实现
var (
	ErrRedisNotAvailable = errors.New("redis not available")
	ErrLockNotAcquired   = errors.New("distributed lock not acquired")
)
