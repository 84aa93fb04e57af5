package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"custody-wallet/pkg/logger"
)

// KafkaConsumer 消费组消费者
// Kafka 不能单独 Nack 一条消息，处理失败时原地指数退避重试，成功后才提交 offset
type KafkaConsumer struct {
	brokers    []string
	groupID    string
	maxBackoff time.Duration
	reader     *kafka.Reader
}

func NewKafkaConsumer(brokers []string, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		brokers:    brokers,
		groupID:    groupID,
		maxBackoff: 30 * time.Second,
	}
}

func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	defer c.reader.Close()

	logger.Info("[Kafka MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.groupID))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Kafka MQ] 读取消息错误", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		msg := fromKafka(topic, m)
		if err := c.handle(ctx, msg, handler); err != nil {
			// 只有 ctx 取消才会走到这里，offset 不提交，重启后重新消费
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warn("[Kafka MQ] 提交 offset 失败", zap.String("id", msg.ID), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg *Message, handler func(msg *Message) error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = c.maxBackoff
	if b.InitialInterval > c.maxBackoff {
		b.InitialInterval = c.maxBackoff
	}
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return handler(msg)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Error("[Kafka MQ] 业务处理失败，稍后重试",
			zap.String("id", msg.ID), zap.Duration("wait", wait), zap.Error(err))
	})
}

func fromKafka(topic string, m kafka.Message) *Message {
	msg := &Message{
		ID:      fmt.Sprintf("%d-%d", m.Partition, m.Offset),
		Topic:   topic,
		Key:     string(m.Key),
		Payload: m.Value,
	}
	for _, h := range m.Headers {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]string, len(m.Headers))
		}
		msg.Metadata[h.Key] = string(h.Value)
	}
	return msg
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
