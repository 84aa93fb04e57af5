package allocator

import (
	"errors"
	"fmt"

	"custody-wallet/pkg/chain"
)

// ErrNotApplicable 策略不适用，继续尝试下一个
var ErrNotApplicable = errors.New("allocator: strategy not applicable")

type Kind int

const (
	KindInvalidKey Kind = iota
	KindNoRoot
	KindDerivation
	KindExhausted
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKey:
		return "invalid_key"
	case KindNoRoot:
		return "no_root"
	case KindDerivation:
		return "derivation"
	case KindExhausted:
		return "exhausted"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error 分配失败，带上组合信息方便调用方展示重试入口
type Error struct {
	Kind   Kind
	UserID uint64
	Key    chain.Key
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("分配地址失败 [%s user=%d %s]: %v", e.Kind, e.UserID, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable 用户点击重试是否可能成功
func (e *Error) Retryable() bool {
	return e.Kind == KindExhausted || e.Kind == KindStore
}

// AsError 取出 *Error
func AsError(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
