// Package notify 面向用户的通知事件，发送即忘，失败只记日志
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"custody-wallet/pkg/logger"
)

// TopicNotification 通知事件的 MQ 主题
const TopicNotification = "wallet_events_notification"

type Kind string

const (
	DepositDetected  Kind = "deposit_detected"
	DepositProgress  Kind = "deposit_progress"
	DepositCompleted Kind = "deposit_completed"
	DepositFailed    Kind = "deposit_failed"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Failure Severity = "error"
)

// Notification Persistent=true 的通知只能由用户手动关闭
type Notification struct {
	ID         string   `json:"id"`
	UserID     uint64   `json:"user_id"`
	Kind       Kind     `json:"kind"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Severity   Severity `json:"severity"`
	Persistent bool     `json:"persistent"`
}

func New(userID uint64, kind Kind, severity Severity, title, body string) Notification {
	return Notification{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		Title:      title,
		Body:       body,
		Severity:   severity,
		Persistent: severity == Failure,
	}
}

// Notifier 发送通知，实现不能阻塞调用方
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// publisher mq.Producer 的子集，避免依赖具体 MQ 实现
type publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}

// MQNotifier 通过 MQ 投递给通知服务
type MQNotifier struct {
	producer publisher
}

func NewMQNotifier(p publisher) *MQNotifier {
	return &MQNotifier{producer: p}
}

func (m *MQNotifier) Notify(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		logger.Error("通知序列化失败", zap.Error(err))
		return
	}
	if err := m.producer.Publish(ctx, TopicNotification, fmt.Sprint(n.UserID), payload); err != nil {
		logger.Warn("通知发送失败", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

// LogNotifier 只打日志 (CLI)
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) {
	logger.Info(n.Title,
		zap.String("kind", string(n.Kind)),
		zap.String("severity", string(n.Severity)),
		zap.Bool("persistent", n.Persistent),
		zap.String("body", n.Body))
}

// Recorder 记录通知 (测试、终端界面)
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// Kinds 已收到的通知类型，按顺序
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.all))
	for _, n := range r.all {
		out = append(out, n.Kind)
	}
	return out
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Multi 同时发给多个 Notifier
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		x.Notify(ctx, n)
	}
}
