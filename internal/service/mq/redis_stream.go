package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"custody-wallet/pkg/logger"
)

const (
	fieldKey     = "key"
	fieldPayload = "payload"
	fieldSentAt  = "sent_at"
)

// RedisProducer 基于 Redis Stream 的生产者，按 MaxLen 近似裁剪
type RedisProducer struct {
	client redis.Cmdable
	maxLen int64
}

func NewRedisProducer(client redis.Cmdable) *RedisProducer {
	return &RedisProducer{client: client, maxLen: 1_000_000}
}

func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			fieldKey:     key,
			fieldPayload: payload,
			fieldSentAt:  time.Now().UnixMilli(),
		},
	}).Err()
	if err != nil {
		logger.Error("[Redis MQ] 发送失败", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("redis xadd %s: %w", topic, err)
	}
	return nil
}

// RedisConsumer 消费组消费者
// 处理失败的消息不 ACK，留在 PEL 里，空闲超过 MinIdle 后由 XAUTOCLAIM 重新领取；
// 投递次数超过 MaxDeliveries 的转入死信主题
type RedisConsumer struct {
	client redis.UniversalClient
	group  string
	name   string
	policy Redelivery
	batch  int64
}

func NewRedisConsumer(client redis.UniversalClient, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
		policy: DefaultRedelivery(),
		batch:  16,
	}
}

// WithRedelivery 替换重投策略
func (c *RedisConsumer) WithRedelivery(p Redelivery) *RedisConsumer {
	c.policy = p
	return c
}

func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// 从 0 开始建组，服务首次上线前积压的充值事件也要处理
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}

	logger.Info("[Redis MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.group), zap.String("consumer", c.name))

	lastReclaim := time.Time{}
	for ctx.Err() == nil {
		if time.Since(lastReclaim) >= c.policy.MinIdle {
			c.reclaim(ctx, topic, handler)
			lastReclaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, ">"},
			Count:    c.batch,
			Block:    2 * time.Second,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("[Redis MQ] 读取消息错误", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, x := range stream.Messages {
				c.dispatch(ctx, topic, x, handler)
			}
		}
	}
	return nil
}

// reclaim 领取空闲过久的待确认消息并重新处理
func (c *RedisConsumer) reclaim(ctx context.Context, topic string, handler func(msg *Message) error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  c.policy.MinIdle,
		Start:    "0-0",
		Count:    c.batch,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			logger.Warn("[Redis MQ] XAUTOCLAIM 失败", zap.String("topic", topic), zap.Error(err))
		}
		return
	}
	if len(msgs) == 0 {
		return
	}

	deliveries := c.deliveries(ctx, topic, msgs)
	for _, x := range msgs {
		if deliveries[x.ID] > c.policy.MaxDeliveries {
			c.deadLetter(ctx, topic, x)
			continue
		}
		c.dispatch(ctx, topic, x, handler)
	}
}

func (c *RedisConsumer) deliveries(ctx context.Context, topic string, msgs []redis.XMessage) map[string]int64 {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   topic,
		Group:    c.group,
		Start:    msgs[0].ID,
		End:      msgs[len(msgs)-1].ID,
		Count:    int64(len(msgs)),
		Consumer: c.name,
	}).Result()
	out := make(map[string]int64, len(pending))
	if err != nil {
		logger.Warn("[Redis MQ] XPENDING 失败", zap.String("topic", topic), zap.Error(err))
		return out
	}
	for _, p := range pending {
		out[p.ID] = p.RetryCount
	}
	return out
}

func (c *RedisConsumer) dispatch(ctx context.Context, topic string, x redis.XMessage, handler func(msg *Message) error) {
	msg, ok := decodeStream(topic, x)
	if !ok {
		logger.Warn("[Redis MQ] 消息格式错误: payload 缺失", zap.String("id", x.ID))
		c.ack(ctx, topic, x.ID)
		return
	}
	if err := handler(msg); err != nil {
		logger.Error("[Redis MQ] 消息处理失败，等待重投", zap.String("id", x.ID), zap.Error(err))
		return
	}
	c.ack(ctx, topic, x.ID)
}

func (c *RedisConsumer) deadLetter(ctx context.Context, topic string, x redis.XMessage) {
	values := make(map[string]interface{}, len(x.Values)+1)
	for k, v := range x.Values {
		values[k] = v
	}
	values["origin_id"] = x.ID
	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: DeadLetterTopic(topic), Values: values}).Err(); err != nil {
		logger.Error("[Redis MQ] 写入死信失败", zap.String("id", x.ID), zap.Error(err))
		return
	}
	logger.Error("[Redis MQ] 超过最大投递次数，转入死信", zap.String("topic", topic), zap.String("id", x.ID))
	c.ack(ctx, topic, x.ID)
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		logger.Warn("[Redis MQ] ACK 失败", zap.String("id", id), zap.Error(err))
	}
}

func (c *RedisConsumer) Close() error {
	return c.client.Close()
}

// decodeStream Stream 里的字段都是字符串，key/payload 之外的字段放进 Metadata
func decodeStream(topic string, x redis.XMessage) (*Message, bool) {
	payload, ok := x.Values[fieldPayload].(string)
	if !ok {
		return nil, false
	}
	msg := &Message{ID: x.ID, Topic: topic, Payload: []byte(payload)}
	msg.Key, _ = x.Values[fieldKey].(string)
	for k, v := range x.Values {
		if k == fieldKey || k == fieldPayload {
			continue
		}
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]string)
		}
		msg.Metadata[k] = fmt.Sprint(v)
	}
	return msg, true
}
