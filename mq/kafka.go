package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"ovozber-backend/config"
	"ovozber-backend/model"

	"github.com/segmentio/kafka-go"
)

// KafkaBus 基于 Kafka 的事件总线
//
// 消息以 poll_id 作为 key，同一投票的事件落在同一分区，保证顺序。
type KafkaBus struct {
	cfg    config.KafkaConfig
	writer *kafka.Writer
	log    *slog.Logger

	mu       sync.Mutex
	reader   *kafka.Reader
	handlers []EventHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaBus 创建 Kafka 生产者，消费者在 Subscribe 时创建
func NewKafkaBus(cfg config.KafkaConfig, log *slog.Logger) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers 未配置")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic 未配置")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	log.Info("Kafka生产者已创建", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &KafkaBus{
		cfg:    cfg,
		writer: writer,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// encodeMessage 构造 Kafka 消息
func encodeMessage(event model.VoteCastEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("序列化投票事件失败: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.PollID), 10)),
		Value: data,
		Time:  event.VotedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}, nil
}

// decodeMessage 解析 Kafka 消息
func decodeMessage(m kafka.Message) (model.VoteCastEvent, error) {
	var event model.VoteCastEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return event, fmt.Errorf("解析投票事件失败: %w", err)
	}
	return event, nil
}

// PublishVoteCast 发送投票事件
func (b *KafkaBus) PublishVoteCast(ctx context.Context, event model.VoteCastEvent) error {
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送投票事件失败: %w", err)
	}
	return nil
}

// Subscribe 注册处理函数，首次注册时以消费者组模式启动 reader
func (b *KafkaBus) Subscribe(handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return ErrBusClosed
	}
	b.handlers = append(b.handlers, handler)
	if b.reader != nil {
		return nil
	}

	b.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.cfg.Brokers,
		Topic:    b.cfg.Topic,
		GroupID:  b.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	b.wg.Add(1)
	go b.consume(b.reader)
	b.log.Info("Kafka消费者已启动", "group_id", b.cfg.GroupID)
	return nil
}

func (b *KafkaBus) consume(reader *kafka.Reader) {
	defer b.wg.Done()
	for {
		m, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.log.Warn("读取Kafka消息失败", "error", err)
			select {
			case <-time.After(time.Second):
			case <-b.ctx.Done():
				return
			}
			continue
		}

		event, err := decodeMessage(m)
		if err != nil {
			b.log.Error("丢弃无法解析的消息", "partition", m.Partition, "offset", m.Offset, "error", err)
		} else {
			b.dispatch(event)
		}

		if err := reader.CommitMessages(b.ctx, m); err != nil && b.ctx.Err() == nil {
			b.log.Warn("提交Kafka偏移量失败", "offset", m.Offset, "error", err)
		}
	}
}

func (b *KafkaBus) dispatch(event model.VoteCastEvent) {
	b.mu.Lock()
	handlers := append([]EventHandler(nil), b.handlers...)
	b.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(b.ctx, event); err != nil {
			b.log.Warn("处理投票事件失败", "event_id", event.EventID, "error", err)
		}
	}
}

// Stats 生产者和消费者计数
func (b *KafkaBus) Stats(ctx context.Context) map[string]int64 {
	ws := b.writer.Stats()
	stats := map[string]int64{
		"published":      ws.Messages,
		"publish_errors": ws.Errors,
	}
	b.mu.Lock()
	reader := b.reader
	b.mu.Unlock()
	if reader != nil {
		rs := reader.Stats()
		stats["consumed"] = rs.Messages
		stats["consume_errors"] = rs.Errors
		stats["lag"] = rs.Lag
	}
	return stats
}

// Close 停止消费并关闭生产者
func (b *KafkaBus) Close() error {
	b.cancel()
	b.wg.Wait()

	var errs []error
	b.mu.Lock()
	if b.reader != nil {
		errs = append(errs, b.reader.Close())
	}
	b.mu.Unlock()
	errs = append(errs, b.writer.Close())
	return errors.Join(errs...)
}
