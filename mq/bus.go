package mq

import (
	"context"
	"errors"

	"ovozber-backend/model"
)

// ErrBusClosed 总线已关闭
var ErrBusClosed = errors.New("event bus closed")

// EventHandler 投票事件处理函数，返回错误时由具体实现决定是否重试
type EventHandler func(ctx context.Context, event model.VoteCastEvent) error

// Bus 投票事件总线
//
// 发布方只关心 PublishVoteCast；统计推送等订阅方通过 Subscribe 注册处理函数。
type Bus interface {
	PublishVoteCast(ctx context.Context, event model.VoteCastEvent) error
	Subscribe(handler EventHandler) error
	Stats(ctx context.Context) map[string]int64
	Close() error
}
