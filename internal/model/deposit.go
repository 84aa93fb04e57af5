package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 充值状态只能前进: pending -> confirmed | rejected
const (
	DepositPending   = "pending"
	DepositConfirmed = "confirmed"
	DepositRejected  = "rejected"
)

// Deposit 充值记录表，由上游扫链服务首次发现交易时写入，确认数增加时原地更新，永不删除
type Deposit struct {
	ID                    uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                uint64          `gorm:"not null;index:idx_deposit_user_chain_asset" json:"user_id"`
	Chain                 string          `gorm:"type:varchar(20);not null;index:idx_deposit_user_chain_asset;uniqueIndex:idx_deposit_tx" json:"chain"`
	Network               string          `gorm:"type:varchar(32);not null" json:"network"`
	Asset                 string          `gorm:"type:varchar(20);not null;index:idx_deposit_user_chain_asset" json:"asset"`
	Amount                decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	TransactionHash       string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_deposit_tx" json:"transaction_hash"`
	WalletAddress         string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_deposit_tx" json:"wallet_address"`
	DestinationTag        *uint32         `json:"destination_tag,omitempty"`
	ConfirmationsObserved uint32          `gorm:"not null;default:0" json:"confirmations_observed"`
	ConfirmationsRequired uint32          `gorm:"not null" json:"confirmations_required"`
	Status                string          `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (Deposit) TableName() string {
	return "deposits"
}

// StatusRank 状态的前进顺序，用于拒绝回退
func StatusRank(status string) int {
	switch status {
	case DepositPending:
		return 0
	case DepositConfirmed, DepositRejected:
		return 1
	default:
		return -1
	}
}

// DepositChange 一次合并带来的变化
type DepositChange struct {
	Created             bool
	Stale               bool // 确认数小于已记录值，已忽略
	ConfirmationsRaised bool
	StatusChanged       bool
	Credit              bool // 本次首次进入 confirmed，需要入账
}

// Changed 是否有需要持久化和推送的变化
func (c DepositChange) Changed() bool {
	return c.Created || c.ConfirmationsRaised || c.StatusChanged
}

// MergeDeposit 把上游事件合并到已有记录 (existing 为 nil 表示首次出现)
// 确认数只增不减，状态只能前进；达到所需确认数的 pending 记录提升为 confirmed
func MergeDeposit(existing *Deposit, incoming Deposit) (Deposit, DepositChange) {
	var change DepositChange
	if StatusRank(incoming.Status) < 0 {
		incoming.Status = DepositPending
	}

	if existing == nil {
		merged := incoming
		merged.ID = 0
		merged.Status = DepositPending
		change.Created = true
		if promote(&merged, incoming.Status) {
			change.StatusChanged = true
			change.Credit = merged.Status == DepositConfirmed
		}
		return merged, change
	}

	merged := *existing
	switch {
	case incoming.ConfirmationsObserved < existing.ConfirmationsObserved:
		change.Stale = true
	case incoming.ConfirmationsObserved > existing.ConfirmationsObserved:
		merged.ConfirmationsObserved = incoming.ConfirmationsObserved
		change.ConfirmationsRaised = true
	}
	if incoming.ConfirmationsRequired > 0 {
		merged.ConfirmationsRequired = incoming.ConfirmationsRequired
	}
	if promote(&merged, incoming.Status) {
		change.StatusChanged = true
		change.Credit = merged.Status == DepositConfirmed
	}
	return merged, change
}

// promote 推进状态，返回状态是否变化
func promote(d *Deposit, status string) bool {
	target := d.Status
	if StatusRank(status) > StatusRank(target) {
		target = status
	}
	if target == DepositPending && d.ConfirmationsRequired > 0 && d.ConfirmationsObserved >= d.ConfirmationsRequired {
		target = DepositConfirmed
	}
	if target == d.Status {
		return false
	}
	d.Status = target
	return true
}

// StreamEventDeposit 充值推送消息类型
const StreamEventDeposit = "deposit"

// StreamEvent websocket 推送通道上的一条消息
type StreamEvent struct {
	Type    string   `json:"type"`
	Deposit *Deposit `json:"deposit,omitempty"`
}
