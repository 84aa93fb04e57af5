package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code      int
	Message   string
	Retryable bool
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 复制一份错误码并替换提示信息
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// IsRetryable 调用方是否可以展示重试入口
func IsRetryable(err error) bool {
	var typed Errno
	if errors.As(err, &typed) {
		return typed.Retryable
	}
	return false
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrTokenInvalid     = Errno{Code: 10003, Message: "Token invalid"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrInvalidParam     = Errno{Code: 10005, Message: "Invalid parameter"}
	ErrTooManyRequests  = Errno{Code: 10006, Message: "Too many requests", Retryable: true}
)

// Business Errors (20000+)
var (
	ErrAddressNotFound      = Errno{Code: 20201, Message: "Address not found"}
	ErrChainUnsupported     = Errno{Code: 20202, Message: "Chain not supported"}
	ErrDerivation           = Errno{Code: 20203, Message: "Address derivation failed"}
	ErrAllocationExhausted  = Errno{Code: 20204, Message: "Address allocation failed, please retry", Retryable: true}
	ErrRootNotFound         = Errno{Code: 20205, Message: "Wallet root not configured"}
	ErrChallengeNotFound    = Errno{Code: 20301, Message: "Challenge not found or expired"}
	ErrVerificationMismatch = Errno{Code: 20302, Message: "Some words do not match", Retryable: true}
)
