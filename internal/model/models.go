package model

import (
	"time"
)

// WalletRoot 每个 (chain, network, asset) 一条，全局共享，不按用户区分
// NextIndex 只增不减，同一个 root 的 index 不能被重复分配
type WalletRoot struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Chain              string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_root_combo" json:"chain"`
	Network            string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_root_combo" json:"network"`
	Asset              string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_root_combo" json:"asset"`
	Xpub               string    `gorm:"column:xpub;type:varchar(255);not null" json:"xpub"`
	DerivationTemplate string    `gorm:"type:varchar(128);not null" json:"derivation_template"` // m/44'/60'/0'/0/{index}
	AddressType        string    `gorm:"type:varchar(32);not null" json:"address_type"`
	NextIndex          uint32    `gorm:"not null;default:0" json:"next_index"`
	MasterKeyID        string    `gorm:"type:varchar(64);not null" json:"master_key_id"`
	Active             bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (WalletRoot) TableName() string {
	return "wallet_roots"
}

// DepositAddress 充值地址表
// 约束 (见 migrations):
//  1. (user_id, chain, network, asset) WHERE active 唯一
//  2. (address, COALESCE(destination_tag, -1), asset) 唯一，且同一地址只能属于一个用户
type DepositAddress struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64    `gorm:"not null;index" json:"user_id"`
	Chain          string    `gorm:"type:varchar(20);not null" json:"chain"`
	Network        string    `gorm:"type:varchar(32);not null" json:"network"`
	Asset          string    `gorm:"type:varchar(20);not null" json:"asset"`
	Address        string    `gorm:"type:varchar(128);not null;index" json:"address"`
	DerivationPath *string   `gorm:"type:varchar(128)" json:"derivation_path,omitempty"`
	AddressIndex   *uint32   `json:"address_index,omitempty"`
	DestinationTag *uint32   `json:"destination_tag,omitempty"`
	Source         string    `gorm:"type:varchar(16);not null;default:'local'" json:"source"` // local, remote, shared
	Active         bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (DepositAddress) TableName() string {
	return "deposit_addresses"
}

// UserDepositAddress 运营后台手工指定的充值地址，优先级最高
type UserDepositAddress struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;index:idx_override_user_currency" json:"user_id"`
	Currency  string    `gorm:"type:varchar(20);not null;index:idx_override_user_currency" json:"currency"`
	Network   string    `gorm:"type:varchar(32);not null" json:"network"`
	Address   string    `gorm:"type:varchar(128);not null" json:"address"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserDepositAddress) TableName() string {
	return "user_deposit_addresses"
}

// OutboxMessage 本地消息表 (Transactional Outbox)
type OutboxMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string    `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string    `gorm:"type:varchar(255);not null;default:''" json:"key"`
	Payload   []byte    `gorm:"type:bytea;not null" json:"payload"`
	Status    string    `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
