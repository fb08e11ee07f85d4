package websocket

import (
	"context"
	"fmt"
	"log/slog"

	"ovozber-backend/model"
)

// MessageTypeStatistics 统计推送的消息类型
const MessageTypeStatistics = "statistics"

// StatisticsSource 实时统计
type StatisticsSource interface {
	PollStatistics(ctx context.Context, pollID uint) (*model.PollStatistics, error)
}

// Broadcaster 收到投票事件后重新计算统计并推送
type Broadcaster struct {
	hub   *Hub
	stats StatisticsSource
	log   *slog.Logger
}

// NewBroadcaster 创建统计推送
func NewBroadcaster(hub *Hub, stats StatisticsSource, log *slog.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, stats: stats, log: log}
}

// HandleVoteCast 作为事件总线的处理函数注册，没有订阅者时跳过计算
func (b *Broadcaster) HandleVoteCast(ctx context.Context, event model.VoteCastEvent) error {
	if b.hub.ClientCount(event.PollID) == 0 {
		return nil
	}
	msg, err := b.snapshot(ctx, event.PollID)
	if err != nil {
		return err
	}
	b.hub.BroadcastToPoll(event.PollID, msg)
	return nil
}

func (b *Broadcaster) snapshot(ctx context.Context, pollID uint) (*model.WebSocketMessage, error) {
	stats, err := b.stats.PollStatistics(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("计算投票 %d 统计失败: %w", pollID, err)
	}
	return &model.WebSocketMessage{
		Type:    MessageTypeStatistics,
		PollID:  pollID,
		Payload: stats,
	}, nil
}
