package mq

import (
	"context"
	"time"
)

// Message 一条业务消息，Payload 一般是 JSON
type Message struct {
	ID       string // Redis Stream ID 或 kafka 的 partition-offset
	Topic    string
	Key      string // 分区键，充值事件用 UserID 保证同一用户有序
	Payload  []byte
	Metadata map[string]string
}

// Handler 返回 error 表示需要重投，业务上拒绝的消息应返回 nil
type Handler func(msg *Message) error

type Producer interface {
	// Publish key 为空时随机分区
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}

type Consumer interface {
	// Subscribe 阻塞直到 ctx 取消
	Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error
	Close() error
}

// Redelivery 处理失败消息的重投策略
type Redelivery struct {
	MinIdle       time.Duration // 失败消息至少空闲这么久才会被重新领取
	MaxDeliveries int64         // 超过后转入死信主题
}

func DefaultRedelivery() Redelivery {
	return Redelivery{MinIdle: 30 * time.Second, MaxDeliveries: 10}
}

// DeadLetterTopic 死信主题名
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}
