package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "conversation:session:"

// SessionStore 聊天会话存储，内容由调用方编码
type SessionStore interface {
	Load(ctx context.Context, id string) ([]byte, bool, error)
	Save(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
}

// RedisSessionStore 基于 Redis 的会话存储，每次写入刷新过期时间
type RedisSessionStore struct {
	redisClient RedisClient
	ttl         time.Duration
}

// NewRedisSessionStore 创建 Redis 会话存储
func NewRedisSessionStore(client RedisClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{redisClient: client, ttl: ttl}
}

// Load 读取会话
func (s *RedisSessionStore) Load(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := s.redisClient.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Save 保存会话
func (s *RedisSessionStore) Save(ctx context.Context, id string, data []byte) error {
	return s.redisClient.Set(ctx, sessionKeyPrefix+id, data, s.ttl).Err()
}

// Delete 删除会话
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.redisClient.Del(ctx, sessionKeyPrefix+id).Err()
}

type memorySession struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore 进程内会话存储，Redis 未启用时使用
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionStore 创建内存会话存储
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Load 读取会话，过期的会话视为不存在
func (s *MemorySessionStore) Load(_ context.Context, id string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(session.expiresAt) {
		delete(s.sessions, id)
		return nil, false, nil
	}
	return session.data, true, nil
}

// Save 保存会话
func (s *MemorySessionStore) Save(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.sessions[id] = memorySession{data: copied, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Delete 删除会话
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}
