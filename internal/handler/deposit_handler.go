package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"custody-wallet/internal/handler/request"
	"custody-wallet/internal/handler/response"
	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/errno"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/validator"
)

// DepositReader 充值查询
type DepositReader interface {
	Latest(ctx context.Context, userID uint64, key chain.Key, limit int) ([]model.Deposit, error)
}

// FeedServer 维护充值推送连接，service.Hub 实现
type FeedServer interface {
	Serve(ctx context.Context, conn *websocket.Conn, userID uint64)
}

type DepositHandler struct {
	deposits DepositReader
	feed     FeedServer
	upgrader websocket.Upgrader
}

func NewDepositHandler(deposits DepositReader, feed FeedServer) *DepositHandler {
	return &DepositHandler{
		deposits: deposits,
		feed:     feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 鉴权由网关负责
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Latest 最近的充值记录
// @Summary 最近的充值记录
// @Description 按创建时间倒序，客户端重连后用于对账
// @Tags Deposit
// @Produce json
// @Param user_id query int true "用户 ID"
// @Param chain query string true "链"
// @Param network query string false "网络"
// @Param asset query string true "资产"
// @Param limit query int false "条数，默认 20"
// @Success 200 {object} response.Response{data=[]model.Deposit}
// @Router /api/v1/deposits [get]
func (h *DepositHandler) Latest(c *gin.Context) {
	var q request.LatestDepositsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	key := chain.NewKey(q.Chain, q.Network, q.Asset)
	if q.Network == "" {
		key.Network = ""
	}

	rows, err := h.deposits.Latest(c.Request.Context(), q.UserID, key, q.Limit)
	if err != nil {
		response.Error(c, translate(err))
		return
	}
	response.Success(c, rows)
}

// Feed 充值实时推送
// @Summary 充值实时推送 (websocket)
// @Tags Deposit
// @Param user_id query int true "用户 ID"
// @Router /api/v1/ws/deposits [get]
func (h *DepositHandler) Feed(c *gin.Context) {
	var q request.DepositFeedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已经写过响应
		logger.Debug("websocket 握手失败", zap.Error(err))
		return
	}
	h.feed.Serve(c.Request.Context(), conn, q.UserID)
}
