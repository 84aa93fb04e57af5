package mq

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// MemoryBroker 进程内的 Producer + Consumer，用于本地开发和测试
// 没有订阅者的主题消息会被丢弃
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan *Message
	seq    atomic.Uint64
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string][]chan *Message)}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	msg := &Message{
		ID:      strconv.FormatUint(b.seq.Add(1), 10),
		Topic:   topic,
		Key:     key,
		Payload: append([]byte(nil), payload...),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe 阻塞直到 ctx 取消，处理失败的消息不重投
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	ch := make(chan *Message, 64)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	defer b.unsubscribe(topic, ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			_ = handler(msg)
		}
	}
}

func (b *MemoryBroker) unsubscribe(topic string, ch chan *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, c := range subs {
		if c == ch {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subscribers 主题当前的订阅者数量
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *MemoryBroker) Close() error {
	return nil
}
