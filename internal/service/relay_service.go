package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"custody-wallet/internal/model"
	"custody-wallet/internal/service/mq"
	"custody-wallet/pkg/logger"
)

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	db        *gorm.DB
	producer  mq.Producer
	interval  time.Duration
	batchSize int
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:        db,
		producer:  producer,
		interval:  500 * time.Millisecond,
		batchSize: 50,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	logger.Info("[Relay] 启动消息中继服务")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Relay] 停止服务")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *RelayService) processPendingMessages(ctx context.Context) {
	// 1. 按 id 顺序取一批 Pending 消息
	var messages []model.OutboxMessage
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(s.batchSize).
		Find(&messages).Error; err != nil {
		logger.Error("[Relay] 查询消息失败", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	sent := relay(ctx, s.producer, messages)
	if len(sent) == 0 {
		return
	}

	// 3. 只有发送成功了才更新状态 => At-least-once，Consumer 需按 deposit_id 幂等
	if err := s.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("id IN ?", sent).
		Update("status", model.OutboxSent).Error; err != nil {
		logger.Error("[Relay] 更新状态失败", zap.Uint64s("ids", sent), zap.Error(err))
		return
	}
	logger.Debug("[Relay] 消息已投递", zap.Int("count", len(sent)))
}

// relay 2. 依次发送，遇到失败就停下，保证同一批消息的顺序
func relay(ctx context.Context, producer mq.Producer, messages []model.OutboxMessage) []uint64 {
	sent := make([]uint64, 0, len(messages))
	for _, msg := range messages {
		if err := producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("[Relay] 发送消息失败", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic), zap.Error(err))
			break
		}
		sent = append(sent, msg.ID)
	}
	return sent
}
