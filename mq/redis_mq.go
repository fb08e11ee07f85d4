package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ovozber-backend/model"

	"github.com/redis/go-redis/v9"
)

// Redis 队列使用的键
const (
	MainQueueName       = "vote_cast:queue"       // 主队列
	ProcessingQueueName = "vote_cast:processing"  // 处理中队列
	DeadLetterQueueName = "vote_cast:dead_letter" // 死信队列
	RetriesHashName     = "vote_cast:retries"     // 重试次数
	messageIDSetName    = "vote_cast:message_ids" // 幂等集合
)

// RedisQueueOptions Redis 队列参数
type RedisQueueOptions struct {
	ProcessingTimeout time.Duration // 处理中超过该时间视为消费者失联，重新入队
	RetryDelay        time.Duration
	MaxRetries        int
	BlockTimeout      time.Duration // BRPOPLPUSH 阻塞时间
}

// DefaultRedisQueueOptions 默认参数
func DefaultRedisQueueOptions() RedisQueueOptions {
	return RedisQueueOptions{
		ProcessingTimeout: 5 * time.Minute,
		RetryDelay:        30 * time.Second,
		MaxRetries:        3,
		BlockTimeout:      time.Second,
	}
}

// envelope 队列中的消息
type envelope struct {
	MessageID  string              `json:"message_id"`
	EnqueuedAt int64               `json:"enqueued_at"`
	Event      model.VoteCastEvent `json:"event"`
}

// RedisQueue 基于 Redis List 的可靠队列
//
// 消费时用 BRPOPLPUSH 把消息移入处理中队列，处理完成后删除；
// 失败的消息按 MaxRetries 重试，超过后进入死信队列。
type RedisQueue struct {
	client *redis.Client
	opts   RedisQueueOptions
	log    *slog.Logger

	mu       sync.RWMutex
	handlers []EventHandler

	published atomic.Int64
	started   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRedisQueue 创建 Redis 队列
func NewRedisQueue(client *redis.Client, opts RedisQueueOptions, log *slog.Logger) *RedisQueue {
	defaults := DefaultRedisQueueOptions()
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = defaults.ProcessingTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = defaults.BlockTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client: client,
		opts:   opts,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// PublishVoteCast 写入主队列，同一 EventID 只入队一次
func (q *RedisQueue) PublishVoteCast(ctx context.Context, event model.VoteCastEvent) error {
	if q.ctx.Err() != nil {
		return ErrBusClosed
	}

	added, err := q.client.SAdd(ctx, messageIDSetName, event.EventID).Result()
	if err != nil {
		q.log.Warn("检查消息幂等性出错", "event_id", event.EventID, "error", err)
	} else if added == 0 {
		q.log.Debug("消息已入队过，跳过", "event_id", event.EventID)
		return nil
	}
	q.client.Expire(ctx, messageIDSetName, 48*time.Hour)

	data, err := json.Marshal(envelope{
		MessageID:  event.EventID,
		EnqueuedAt: time.Now().Unix(),
		Event:      event,
	})
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	if err := q.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
		return fmt.Errorf("发送消息到队列失败: %w", err)
	}
	q.published.Add(1)
	return nil
}

// Subscribe 注册处理函数，首次注册时启动消费循环
func (q *RedisQueue) Subscribe(handler EventHandler) error {
	if q.ctx.Err() != nil {
		return ErrBusClosed
	}
	q.mu.Lock()
	q.handlers = append(q.handlers, handler)
	q.mu.Unlock()

	if q.started.CompareAndSwap(false, true) {
		q.wg.Add(2)
		go q.consumeLoop()
		go q.timeoutCheckLoop()
		q.log.Info("Redis消息队列消费者已启动")
	}
	return nil
}

func (q *RedisQueue) consumeLoop() {
	defer q.wg.Done()
	for {
		if q.ctx.Err() != nil {
			return
		}
		data, err := q.client.BRPopLPush(q.ctx, MainQueueName, ProcessingQueueName, q.opts.BlockTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || q.ctx.Err() != nil {
				continue
			}
			q.log.Warn("从队列获取消息失败", "error", err)
			select {
			case <-time.After(time.Second):
			case <-q.ctx.Done():
			}
			continue
		}
		q.process(data)
	}
}

func (q *RedisQueue) process(data string) {
	defer q.client.LRem(context.Background(), ProcessingQueueName, 1, data)

	var msg envelope
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		q.log.Error("解析消息失败，移入死信队列", "error", err)
		q.client.LPush(context.Background(), DeadLetterQueueName, data)
		return
	}

	q.mu.RLock()
	handlers := append([]EventHandler(nil), q.handlers...)
	q.mu.RUnlock()

	var handleErr error
	for _, handler := range handlers {
		if err := handler(q.ctx, msg.Event); err != nil {
			handleErr = err
		}
	}
	if handleErr == nil {
		q.client.HDel(context.Background(), RetriesHashName, msg.MessageID)
		return
	}

	q.log.Warn("处理消息失败", "message_id", msg.MessageID, "error", handleErr)
	q.retryOrBury(msg, data)
}

// retryOrBury 增加重试计数，超过上限后移入死信队列
func (q *RedisQueue) retryOrBury(msg envelope, data string) {
	ctx := context.Background()
	retries, err := q.client.HIncrBy(ctx, RetriesHashName, msg.MessageID, 1).Result()
	if err != nil || retries > int64(q.opts.MaxRetries) {
		q.log.Warn("消息超过最大重试次数，移至死信队列", "message_id", msg.MessageID, "retries", retries)
		q.client.LPush(ctx, DeadLetterQueueName, data)
		return
	}

	msg.EnqueuedAt = time.Now().Unix()
	updated, _ := json.Marshal(msg)
	requeue := func() {
		if err := q.client.LPush(ctx, MainQueueName, updated).Err(); err != nil {
			q.log.Error("重新入队失败", "message_id", msg.MessageID, "error", err)
			return
		}
		q.log.Info("消息重新入队", "message_id", msg.MessageID, "retries", retries)
	}
	if q.opts.RetryDelay <= 0 {
		requeue()
		return
	}
	time.AfterFunc(q.opts.RetryDelay, func() {
		if q.ctx.Err() == nil {
			requeue()
		}
	})
}

func (q *RedisQueue) timeoutCheckLoop() {
	defer q.wg.Done()

	interval := time.Minute
	if q.opts.ProcessingTimeout < interval {
		interval = q.opts.ProcessingTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.CheckTimeouts(q.ctx)
		}
	}
}

// CheckTimeouts 把处理中队列里超时的消息重新入队或移入死信队列
func (q *RedisQueue) CheckTimeouts(ctx context.Context) int {
	messages, err := q.client.LRange(ctx, ProcessingQueueName, 0, -1).Result()
	if err != nil {
		q.log.Warn("获取处理中队列消息失败", "error", err)
		return 0
	}

	deadline := time.Now().Add(-q.opts.ProcessingTimeout).Unix()
	moved := 0
	for _, data := range messages {
		var msg envelope
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			q.client.LPush(ctx, DeadLetterQueueName, data)
			q.client.LRem(ctx, ProcessingQueueName, 1, data)
			continue
		}
		if msg.EnqueuedAt > deadline {
			continue
		}
		if removed, _ := q.client.LRem(ctx, ProcessingQueueName, 1, data).Result(); removed == 0 {
			// 已被消费者处理完
			continue
		}
		q.retryOrBury(msg, data)
		moved++
	}
	return moved
}

// RetryDeadLetters 把死信队列中的消息移回主队列
func (q *RedisQueue) RetryDeadLetters(ctx context.Context) (int, error) {
	messages, err := q.client.LRange(ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("获取死信队列消息失败: %w", err)
	}

	count := 0
	for _, data := range messages {
		if err := q.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
			q.log.Warn("重新入队消息失败", "error", err)
			continue
		}
		q.client.LRem(ctx, DeadLetterQueueName, 1, data)

		var msg envelope
		if json.Unmarshal([]byte(data), &msg) == nil {
			q.client.HDel(ctx, RetriesHashName, msg.MessageID)
		}
		count++
	}

	q.log.Info("死信消息已移回主队列", "count", count)
	return count, nil
}

// Stats 各队列长度
func (q *RedisQueue) Stats(ctx context.Context) map[string]int64 {
	stats := map[string]int64{"published": q.published.Load()}
	for name, key := range map[string]string{
		"main_queue":        MainQueueName,
		"processing_queue":  ProcessingQueueName,
		"dead_letter_queue": DeadLetterQueueName,
	} {
		n, err := q.client.LLen(ctx, key).Result()
		if err != nil {
			n = -1
		}
		stats[name] = n
	}
	return stats
}

// Close 停止消费循环，Redis 客户端由调用方关闭
func (q *RedisQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
