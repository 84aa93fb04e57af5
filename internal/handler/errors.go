package handler

import (
	"errors"

	"custody-wallet/internal/allocator"
	"custody-wallet/internal/verifier"
	"custody-wallet/pkg/errno"
	"custody-wallet/pkg/vault"
)

// translate 把领域错误映射为错误码，已经是 errno 的原样返回
func translate(err error) error {
	var e errno.Errno
	if errors.As(err, &e) {
		return e
	}

	if ae, ok := allocator.AsError(err); ok {
		switch ae.Kind {
		case allocator.KindInvalidKey:
			return errno.ErrChainUnsupported
		case allocator.KindNoRoot:
			return errno.ErrRootNotFound
		case allocator.KindDerivation:
			return errno.ErrDerivation
		default:
			return errno.ErrAllocationExhausted
		}
	}

	switch {
	case errors.Is(err, verifier.ErrNotFound):
		return errno.ErrChallengeNotFound
	case errors.Is(err, verifier.ErrRateLimited):
		return errno.ErrTooManyRequests
	case errors.Is(err, vault.ErrWeakPassword):
		return errno.ErrInvalidParam.WithMessage(err.Error())
	}
	return errno.InternalServerError
}
