package mq

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"ovozber-backend/model"
)

// MemoryBus 进程内事件总线，未配置 Kafka 和 Redis 时使用
type MemoryBus struct {
	events   chan model.VoteCastEvent
	handlers []EventHandler
	mu       sync.RWMutex
	log      *slog.Logger

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewMemoryBus 创建内存总线，buffer 为待处理事件的缓冲大小
func NewMemoryBus(buffer int, log *slog.Logger) *MemoryBus {
	if buffer <= 0 {
		buffer = 256
	}
	b := &MemoryBus{
		events: make(chan model.VoteCastEvent, buffer),
		log:    log,
		done:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

// PublishVoteCast 放入缓冲区，缓冲区满时阻塞直到 ctx 结束
func (b *MemoryBus) PublishVoteCast(ctx context.Context, event model.VoteCastEvent) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	select {
	case b.events <- event:
		b.published.Add(1)
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe 注册处理函数
func (b *MemoryBus) Subscribe(handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

func (b *MemoryBus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case event := <-b.events:
			b.dispatch(event)
		case <-b.done:
			// 关闭前把缓冲区里剩余的事件处理完
			for {
				select {
				case event := <-b.events:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *MemoryBus) dispatch(event model.VoteCastEvent) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(context.Background(), event); err != nil {
			b.failed.Add(1)
			b.log.Warn("处理投票事件失败", "event_id", event.EventID, "poll_id", event.PollID, "error", err)
			continue
		}
		b.delivered.Add(1)
	}
}

// Stats 发布/投递计数
func (b *MemoryBus) Stats(ctx context.Context) map[string]int64 {
	return map[string]int64{
		"published": b.published.Load(),
		"delivered": b.delivered.Load(),
		"failed":    b.failed.Load(),
		"pending":   int64(len(b.events)),
	}
}

// Close 停止分发，等待缓冲区处理完毕
func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
	return nil
}
