package tracker

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Status 异步结果的三种状态
type Status int

const (
	Pending Status = iota
	Ready
	FailedStatus
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	default:
		return "failed"
	}
}

// Async 一次请求的结果: Pending | Ready(T) | Failed(E)，只能 Resolve 一次
type Async[T any] struct {
	mu     sync.Mutex
	result fn.Option[fn.Result[T]]
	done   chan struct{}
}

func NewAsync[T any]() *Async[T] {
	return &Async[T]{
		result: fn.None[fn.Result[T]](),
		done:   make(chan struct{}),
	}
}

// Resolve 写入结果，重复写入返回 false
func (a *Async[T]) Resolve(value T, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result.IsSome() {
		return false
	}
	if err != nil {
		a.result = fn.Some(fn.Err[T](err))
	} else {
		a.result = fn.Some(fn.Ok(value))
	}
	close(a.done)
	return true
}

func (a *Async[T]) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	status := Pending
	a.result.WhenSome(func(r fn.Result[T]) {
		if r.IsOk() {
			status = Ready
		} else {
			status = FailedStatus
		}
	})
	return status
}

// Result 尚未完成时返回 None
func (a *Async[T]) Result() fn.Option[fn.Result[T]] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// Wait 阻塞到完成或 ctx 取消
func (a *Async[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-a.done:
		r := a.Result().UnwrapOr(fn.Err[T](context.Canceled))
		return r.Unpack()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
