package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// Cache 定义通用缓存接口
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get 获取缓存，并将结果 Unmarshal 到 target 中，未命中返回 ErrMiss
	Get(ctx context.Context, key string, target interface{}) error
	Delete(ctx context.Context, key string) error
}

var loadGroup singleflight.Group

// GetOrLoad 先查缓存，未命中时调用 load 回源并写回。同一个 key 的并发回源只执行一次。
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if err := c.Get(ctx, key, &out); err == nil {
		return out, nil
	}

	v, err, _ := loadGroup.Do(key, func() (interface{}, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.Set(ctx, key, val, ttl)
		return val, nil
	})
	if err != nil {
		return out, err
	}
	return v.(T), nil
}
