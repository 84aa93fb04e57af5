package model

import (
	"encoding/json"

	"gorm.io/gorm"
)

const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
)

// MQ 主题
const (
	TopicDeposit = "wallet_events_deposit" // 上游扫链服务推送的充值事件
	TopicCredit  = "wallet_events_credit"  // 发给账务系统的入账请求
)

// CreditRequest 入账请求，账务系统按 DepositID 幂等
type CreditRequest struct {
	DepositID       uint64 `json:"deposit_id"`
	UserID          uint64 `json:"user_id"`
	Chain           string `json:"chain"`
	Network         string `json:"network"`
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
	TransactionHash string `json:"transaction_hash"`
}

// NewCreditRequest 由已确认的充值生成入账请求
func NewCreditRequest(d Deposit) CreditRequest {
	return CreditRequest{
		DepositID:       d.ID,
		UserID:          d.UserID,
		Chain:           d.Chain,
		Network:         d.Network,
		Asset:           d.Asset,
		Amount:          d.Amount.String(),
		TransactionHash: d.TransactionHash,
	}
}

// CreateOutboxMessage 在同一个事务中创建业务数据和 Outbox 消息
func CreateOutboxMessage(tx *gorm.DB, topic, key string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := OutboxMessage{
		Topic:   topic,
		Key:     key,
		Payload: payloadBytes,
		Status:  OutboxPending,
	}

	return tx.Create(&msg).Error
}
