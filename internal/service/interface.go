package service

import (
	"context"

	"custody-wallet/internal/model"
)

type AddressService interface {
	// Allocate 为用户获取或生成 (chain, network, asset) 的充值地址，幂等
	Allocate(ctx context.Context, userID uint64, chain, network, asset string) (*model.DepositAddress, error)

	// ListByUser 用户的所有有效充值地址
	ListByUser(ctx context.Context, userID uint64) ([]model.DepositAddress, error)

	// Combinations 当前可分配的 (chain, network, asset) 组合
	Combinations(ctx context.Context) ([]Combination, error)
}
