// Package repository 基于 gorm 的持久化实现
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/retry"
)

const reserveAttempts = 8

// AddressStore 充值地址、WalletRoot、运营指定地址的读写
type AddressStore struct {
	db *gorm.DB
}

func NewAddressStore(db *gorm.DB) *AddressStore {
	return &AddressStore{db: db}
}

func (s *AddressStore) FindOverrides(ctx context.Context, userID uint64, currency string) ([]model.UserDepositAddress, error) {
	var rows []model.UserDepositAddress
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND UPPER(currency) = ? AND is_active", userID, chain.NormalizeAsset(currency)).
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (s *AddressStore) FindActive(ctx context.Context, userID uint64, key chain.Key) (*model.DepositAddress, error) {
	var row model.DepositAddress
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND chain = ? AND network = ? AND asset = ? AND active", userID, string(key.Chain), key.Network, key.Asset).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListActive 分页遍历有效地址，对账任务使用
func (s *AddressStore) ListActive(ctx context.Context, afterID uint64, limit int) ([]model.DepositAddress, error) {
	var rows []model.DepositAddress
	err := s.db.WithContext(ctx).
		Where("active AND id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListByUser 用户的所有有效地址
func (s *AddressStore) ListByUser(ctx context.Context, userID uint64) ([]model.DepositAddress, error) {
	var rows []model.DepositAddress
	err := s.db.WithContext(ctx).Where("user_id = ? AND active", userID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// FindByAddress 按地址 (和 tag) 找到归属的有效地址记录，充值事件没有带用户时使用
func (s *AddressStore) FindByAddress(ctx context.Context, chainID chain.ID, address string, tag *uint32) (*model.DepositAddress, error) {
	q := s.db.WithContext(ctx).Where("chain = ? AND active", string(chainID))
	if chainID == chain.EVM {
		q = q.Where("LOWER(address) = LOWER(?)", address)
	} else {
		q = q.Where("address = ?", address)
	}
	if tag != nil {
		q = q.Where("destination_tag = ?", *tag)
	} else {
		q = q.Where("destination_tag IS NULL")
	}

	var row model.DepositAddress
	err := q.Order("id ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *AddressStore) FindRoot(ctx context.Context, key chain.Key) (*model.WalletRoot, error) {
	// 1. 精确匹配
	// 2. 代币回退到同链基础资产的 root
	for _, asset := range []string{key.Asset, key.Base().Asset} {
		var root model.WalletRoot
		err := s.db.WithContext(ctx).
			Where("chain = ? AND network = ? AND asset = ? AND active", string(key.Chain), key.Network, asset).
			First(&root).Error
		if err == nil {
			return &root, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// ListRoots 所有 WalletRoot
func (s *AddressStore) ListRoots(ctx context.Context) ([]model.WalletRoot, error) {
	var roots []model.WalletRoot
	err := s.db.WithContext(ctx).Order("chain, network, asset").Find(&roots).Error
	return roots, err
}

// ErrRootMismatch 同一组合已存在不同的 xpub
var ErrRootMismatch = errors.New("WalletRoot 已存在且扩展公钥不同")

// SaveRoot 创建 WalletRoot，已存在时只校验 xpub 一致，不覆盖 (否则已分配的地址无法复现)
func (s *AddressStore) SaveRoot(ctx context.Context, root *model.WalletRoot) (created bool, err error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(root)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var existing model.WalletRoot
	if err := s.db.WithContext(ctx).
		Where("chain = ? AND network = ? AND asset = ?", root.Chain, root.Network, root.Asset).
		First(&existing).Error; err != nil {
		return false, err
	}
	if existing.Xpub != root.Xpub {
		return false, fmt.Errorf("%w: %s/%s/%s", ErrRootMismatch, root.Chain, root.Network, root.Asset)
	}
	*root = existing
	return false, nil
}

// ReserveIndex 乐观锁递增 next_index: 读到的值作为本次 index，CAS 失败时重读
func (s *AddressStore) ReserveIndex(ctx context.Context, rootID uint64) (uint32, error) {
	return retry.Do(ctx, reserveAttempts, func(ctx context.Context, attempt int) (uint32, error) {
		var root model.WalletRoot
		if err := s.db.WithContext(ctx).Select("id", "next_index").First(&root, rootID).Error; err != nil {
			return 0, err
		}
		res := s.db.WithContext(ctx).Model(&model.WalletRoot{}).
			Where("id = ? AND next_index = ?", rootID, root.NextIndex).
			Updates(map[string]interface{}{
				"next_index": gorm.Expr("next_index + 1"),
				"updated_at": gorm.Expr("NOW()"),
			})
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, retry.Conflict(fmt.Errorf("root %d next_index changed", rootID))
		}
		return root.NextIndex, nil
	}, nil)
}

// MintTag 行锁 root，tag = next_index + 1 (避开 0)。
// tag 已被占用时把计数器快进到该地址已发放的最大 tag 之后，而不是逐个试探。
func (s *AddressStore) MintTag(ctx context.Context, rootID uint64, address string) (uint32, error) {
	var tag uint32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root model.WalletRoot
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&root, rootID).Error; err != nil {
			return err
		}
		tag = root.NextIndex + 1

		inUse, err := tagInUse(tx, address, tag)
		if err != nil {
			return err
		}
		if inUse {
			var max *uint32
			if err := tx.Model(&model.DepositAddress{}).
				Where("address = ?", address).
				Select("MAX(destination_tag)").
				Scan(&max).Error; err != nil {
				return err
			}
			if max != nil {
				tag = *max + 1
			}
		}

		return tx.Model(&model.WalletRoot{}).Where("id = ?", rootID).
			Updates(map[string]interface{}{"next_index": tag, "updated_at": gorm.Expr("NOW()")}).Error
	})
	return tag, err
}

func tagInUse(tx *gorm.DB, address string, tag uint32) (bool, error) {
	var n int64
	err := tx.Model(&model.DepositAddress{}).
		Where("address = ? AND destination_tag = ?", address, tag).
		Count(&n).Error
	return n > 0, err
}

// InsertIfAbsent 单条 INSERT ... ON CONFLICT DO NOTHING，冲突时区分是组合冲突还是地址冲突。
// 同一地址 (及 tag) 只允许属于一个用户，这一点唯一索引表达不了:
// 先按地址加事务级咨询锁，归属检查和插入对同一地址串行执行，直到事务提交。
func (s *AddressStore) InsertIfAbsent(ctx context.Context, row *model.DepositAddress) (model.InsertOutcome, error) {
	outcome := model.Inserted
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 0. 地址锁
		if err := lockAddress(tx, row.Address); err != nil {
			return err
		}

		// 1. 地址归属
		q := tx.Model(&model.DepositAddress{}).Where("address = ? AND user_id <> ?", row.Address, row.UserID)
		if row.DestinationTag != nil {
			q = q.Where("destination_tag = ?", *row.DestinationTag)
		} else {
			q = q.Where("destination_tag IS NULL")
		}
		var owned int64
		if err := q.Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			outcome = model.AddressConflict
			return nil
		}

		// 2. 插入
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}

		// 3. 冲突类型
		var active int64
		if err := tx.Model(&model.DepositAddress{}).
			Where("user_id = ? AND chain = ? AND network = ? AND asset = ? AND active", row.UserID, row.Chain, row.Network, row.Asset).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			outcome = model.KeyConflict
		} else {
			outcome = model.AddressConflict
		}
		return nil
	})
	return outcome, err
}

// lockAddress pg_advisory_xact_lock，事务结束时自动释放
func lockAddress(tx *gorm.DB, address string) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", addressLockKey(address)).Error
}

func addressLockKey(address string) string {
	return "deposit_address:" + address
}

// SaveOverride 运营后台写入指定地址
func (s *AddressStore) SaveOverride(ctx context.Context, o *model.UserDepositAddress) error {
	o.Currency = chain.NormalizeAsset(o.Currency)
	return s.db.WithContext(ctx).Create(o).Error
}
