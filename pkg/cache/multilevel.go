package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"custody-wallet/pkg/logger"
)

// MultiLevelCache 实现多级缓存 (L1: Memory, L2: Redis)
type MultiLevelCache struct {
	local    Cache
	remote   Cache
	localTTL time.Duration
}

// NewMultiLevelCache remote 为 nil 时退化为纯内存缓存 (CLI、测试)
func NewMultiLevelCache(local, remote Cache, localTTL time.Duration) *MultiLevelCache {
	if localTTL <= 0 {
		localTTL = time.Minute
	}
	return &MultiLevelCache{local: local, remote: remote, localTTL: localTTL}
}

func (m *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	l1 := ttl
	if l1 <= 0 || l1 > m.localTTL {
		l1 = m.localTTL
	}
	if err := m.local.Set(ctx, key, value, l1); err != nil {
		logger.Warn("L1 缓存写入失败", zap.String("key", key), zap.Error(err))
	}
	if m.remote == nil {
		return nil
	}
	return m.remote.Set(ctx, key, value, ttl)
}

func (m *MultiLevelCache) Get(ctx context.Context, key string, target interface{}) error {
	// 1. 查 L1
	if err := m.local.Get(ctx, key, target); err == nil {
		return nil
	}
	if m.remote == nil {
		return ErrMiss
	}

	// 2. 查 L2，命中后回写 L1
	if err := m.remote.Get(ctx, key, target); err != nil {
		return err
	}
	_ = m.local.Set(ctx, key, target, m.localTTL)
	return nil
}

func (m *MultiLevelCache) Delete(ctx context.Context, key string) error {
	_ = m.local.Delete(ctx, key)
	if m.remote == nil {
		return nil
	}
	return m.remote.Delete(ctx, key)
}
