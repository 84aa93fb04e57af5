// Package retry 提供有界重试原语，用于唯一约束冲突、乐观锁冲突等 "可预期" 的失败。
package retry

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConflict 操作遇到可恢复的冲突，调用方应返回 (或包装) 它以触发下一轮
	ErrConflict = errors.New("retry: conflict")
	// ErrExhausted 重试次数用尽
	ErrExhausted = errors.New("retry: attempts exhausted")
)

// ReRead 冲突后的回查函数: found=true 时直接把 value 作为最终结果返回
type ReRead[T any] func(ctx context.Context) (value T, found bool, err error)

// Do 最多执行 attempts 次 op:
//   - op 成功: 返回结果
//   - op 返回 ErrConflict: 先调用 onConflict 回查 (可为 nil)，查到即返回，否则进入下一轮
//   - 其他错误: 立即返回，不重试
//
// 次数用尽返回包装了 ErrExhausted 和最后一次冲突原因的错误。
func Do[T any](ctx context.Context, attempts int, op func(ctx context.Context, attempt int) (T, error), onConflict ReRead[T]) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrConflict) {
			return zero, err
		}
		last = err

		if onConflict != nil {
			existing, found, rerr := onConflict(ctx)
			if rerr != nil {
				return zero, rerr
			}
			if found {
				return existing, nil
			}
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

// Conflict 把 err 标记为可重试冲突
func Conflict(err error) error {
	if err == nil {
		return ErrConflict
	}
	return fmt.Errorf("%w: %w", ErrConflict, err)
}
