package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"custody-wallet/internal/model"
	"custody-wallet/internal/service/mq"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/errno"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
)

// DepositRepository 充值记录持久化，生产实现见 repository.DepositStore
type DepositRepository interface {
	Apply(ctx context.Context, incoming model.Deposit) (model.Deposit, model.DepositChange, error)
	Latest(ctx context.Context, userID uint64, key chain.Key, limit int) ([]model.Deposit, error)
}

// OwnerLookup 按地址找到归属用户
type OwnerLookup interface {
	FindByAddress(ctx context.Context, chainID chain.ID, address string, tag *uint32) (*model.DepositAddress, error)
}

// Broadcaster 充值变化的实时推送
type Broadcaster interface {
	Publish(d model.Deposit)
}

// DepositEvent 上游扫链服务推送的充值事件 (MQ 消息体)
type DepositEvent struct {
	UserID                uint64          `json:"user_id,omitempty"`
	Chain                 string          `json:"chain"`
	Network               string          `json:"network"`
	Asset                 string          `json:"asset"`
	Amount                decimal.Decimal `json:"amount"`
	TransactionHash       string          `json:"transaction_hash"`
	WalletAddress         string          `json:"wallet_address"`
	DestinationTag        *uint32         `json:"destination_tag,omitempty"`
	ConfirmationsObserved uint32          `json:"confirmations_observed"`
	ConfirmationsRequired uint32          `json:"confirmations_required"`
	Status                string          `json:"status"`
}

// DepositService 接收充值事件并维护 deposits 表
type DepositService struct {
	repo   DepositRepository
	owners OwnerLookup
	hub    Broadcaster
}

func NewDepositService(repo DepositRepository, owners OwnerLookup, hub Broadcaster) *DepositService {
	return &DepositService{repo: repo, owners: owners, hub: hub}
}

// Ingest 处理一条充值事件
// 确认数只增不减，状态只能前进；乱序到达的旧事件不会覆盖已有数据
func (s *DepositService) Ingest(ctx context.Context, ev DepositEvent) (model.Deposit, model.DepositChange, error) {
	// 1. 校验并规范化
	incoming, err := s.normalize(ctx, ev)
	if err != nil {
		return model.Deposit{}, model.DepositChange{}, err
	}

	// 2. 合并入库 (同事务写入入账请求)
	merged, change, err := s.repo.Apply(ctx, incoming)
	if err != nil {
		logger.Error("充值入库失败",
			zap.String("chain", incoming.Chain),
			zap.String("tx", incoming.TransactionHash),
			zap.Error(err))
		return model.Deposit{}, model.DepositChange{}, errno.ErrDatabase
	}

	// 3. 指标和推送
	switch {
	case change.Stale:
		monitor.Business.StaleEventsTotal.WithLabelValues(merged.Chain).Inc()
	case change.Changed():
		monitor.Business.DepositEventsTotal.WithLabelValues(merged.Chain, merged.Status).Inc()
	}
	if change.Credit {
		monitor.Business.DepositCreditedTotal.WithLabelValues(merged.Chain, merged.Asset).Inc()
		logger.Info("充值已确认，入账请求已写入 outbox",
			zap.Uint64("deposit_id", merged.ID),
			zap.Uint64("user_id", merged.UserID),
			zap.String("amount", merged.Amount.String()),
			zap.String("asset", merged.Asset))
	}
	if change.Changed() && s.hub != nil {
		s.hub.Publish(merged)
	}
	return merged, change, nil
}

func (s *DepositService) normalize(ctx context.Context, ev DepositEvent) (model.Deposit, error) {
	id := chain.Parse(ev.Chain)
	if id == chain.Unknown {
		return model.Deposit{}, errno.ErrChainUnsupported
	}
	if strings.TrimSpace(ev.TransactionHash) == "" || strings.TrimSpace(ev.WalletAddress) == "" {
		return model.Deposit{}, errno.ErrInvalidParam.WithMessage("transaction_hash 和 wallet_address 不能为空")
	}
	key := chain.NewKey(ev.Chain, ev.Network, ev.Asset)

	d := model.Deposit{
		UserID:                ev.UserID,
		Chain:                 string(key.Chain),
		Network:               key.Network,
		Asset:                 key.Asset,
		Amount:                ev.Amount,
		TransactionHash:       strings.TrimSpace(ev.TransactionHash),
		WalletAddress:         strings.TrimSpace(ev.WalletAddress),
		DestinationTag:        ev.DestinationTag,
		ConfirmationsObserved: ev.ConfirmationsObserved,
		ConfirmationsRequired: ev.ConfirmationsRequired,
		Status:                ev.Status,
	}
	// EVM 地址统一为 EIP-55 形式，避免大小写不同产生重复记录
	if key.Chain == chain.EVM && common.IsHexAddress(d.WalletAddress) {
		d.WalletAddress = common.HexToAddress(d.WalletAddress).Hex()
	}

	// 事件没有带用户时按地址查找归属
	if d.UserID == 0 {
		if s.owners == nil {
			return model.Deposit{}, errno.ErrInvalidParam.WithMessage("缺少 user_id")
		}
		owner, err := s.owners.FindByAddress(ctx, key.Chain, d.WalletAddress, d.DestinationTag)
		if err != nil {
			return model.Deposit{}, errno.ErrDatabase
		}
		if owner == nil {
			return model.Deposit{}, errno.ErrAddressNotFound
		}
		d.UserID = owner.UserID
		d.WalletAddress = owner.Address
	}
	return d, nil
}

// Latest 用户某个组合最近的充值记录
func (s *DepositService) Latest(ctx context.Context, userID uint64, key chain.Key, limit int) ([]model.Deposit, error) {
	return s.repo.Latest(ctx, userID, key, limit)
}

// HandleMessage MQ 回调，格式错误或地址不属于本系统的事件直接确认丢弃
func (s *DepositService) HandleMessage(ctx context.Context, msg *mq.Message) error {
	var ev DepositEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logger.Warn("充值事件格式错误，丢弃", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	_, _, err := s.Ingest(ctx, ev)
	if err == nil {
		return nil
	}
	code, _ := errno.Decode(err)
	if code == errno.ErrDatabase.Code {
		return fmt.Errorf("处理充值事件 %s: %w", msg.ID, err)
	}
	logger.Warn("充值事件被拒绝", zap.String("id", msg.ID), zap.String("tx", ev.TransactionHash), zap.Error(err))
	return nil
}

// Consume 订阅充值事件主题，阻塞直到 ctx 取消
func (s *DepositService) Consume(ctx context.Context, consumer mq.Consumer) error {
	return consumer.Subscribe(ctx, model.TopicDeposit, func(msg *mq.Message) error {
		return s.HandleMessage(ctx, msg)
	})
}
