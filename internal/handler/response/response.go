package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"custody-wallet/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"msg"`
	Retryable bool        `json:"retryable,omitempty"` // 客户端据此决定是否展示重试入口
	Data      interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	c.JSON(http.StatusOK, Response{
		Code:      code,
		Message:   msg,
		Retryable: errno.IsRetryable(err),
		Data:      gin.H{},
	})
}

// ErrorWithData 错误响应附带数据，例如校验失败的位置
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	code, msg := errno.Decode(err)
	c.JSON(http.StatusOK, Response{
		Code:      code,
		Message:   msg,
		Retryable: errno.IsRetryable(err),
		Data:      data,
	})
}
