package repository

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
)

// DepositStore 充值记录的读写
type DepositStore struct {
	db *gorm.DB
}

func NewDepositStore(db *gorm.DB) *DepositStore {
	return &DepositStore{db: db}
}

// Apply 锁定同一笔充值 (chain, tx_hash, wallet_address) 并合并事件
// 首次进入 confirmed 时在同一事务中写入入账请求 (Transactional Outbox)
func (s *DepositStore) Apply(ctx context.Context, incoming model.Deposit) (model.Deposit, model.DepositChange, error) {
	var (
		merged model.Deposit
		change model.DepositChange
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 锁定已有记录
		existing, err := lockDeposit(tx, incoming)
		if err != nil {
			return err
		}

		// 2. 首次出现: 插入，并发插入冲突时重新锁定已有记录
		if existing == nil {
			merged, change = model.MergeDeposit(nil, incoming)
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&merged)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				return writeCredit(tx, merged, change)
			}
			if existing, err = lockDeposit(tx, incoming); err != nil {
				return err
			}
			if existing == nil {
				return errors.New("充值记录插入冲突后仍不存在")
			}
		}

		// 3. 合并
		merged, change = model.MergeDeposit(existing, incoming)
		if !change.Changed() {
			return nil
		}
		if err := tx.Model(&model.Deposit{}).Where("id = ?", merged.ID).Updates(map[string]interface{}{
			"confirmations_observed": merged.ConfirmationsObserved,
			"confirmations_required": merged.ConfirmationsRequired,
			"status":                 merged.Status,
		}).Error; err != nil {
			return err
		}
		return writeCredit(tx, merged, change)
	})
	return merged, change, err
}

func lockDeposit(tx *gorm.DB, d model.Deposit) (*model.Deposit, error) {
	var row model.Deposit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("chain = ? AND transaction_hash = ? AND wallet_address = ?", d.Chain, d.TransactionHash, d.WalletAddress).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func writeCredit(tx *gorm.DB, d model.Deposit, change model.DepositChange) error {
	if !change.Credit {
		return nil
	}
	return model.CreateOutboxMessage(tx, model.TopicCredit, strconv.FormatUint(d.UserID, 10), model.NewCreditRequest(d))
}

// Latest 用户某个组合最近的充值记录，按创建时间倒序
func (s *DepositStore) Latest(ctx context.Context, userID uint64, key chain.Key, limit int) ([]model.Deposit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Where("user_id = ? AND chain = ? AND asset = ?", userID, string(key.Chain), key.Asset)
	if key.Network != "" {
		// 入库时网络名已规范化
		q = q.Where("network = ?", key.Network)
	}
	var rows []model.Deposit
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Pending 某条链上还在等待确认的充值，确认数观察器使用
func (s *DepositStore) Pending(ctx context.Context, chainID chain.ID, limit int) ([]model.Deposit, error) {
	var rows []model.Deposit
	err := s.db.WithContext(ctx).
		Where("chain = ? AND status = ?", string(chainID), model.DepositPending).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
