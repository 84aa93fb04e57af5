package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"custody-wallet/internal/classifier"
	"custody-wallet/internal/handler/request"
	"custody-wallet/internal/handler/response"
	"custody-wallet/internal/service"
	"custody-wallet/pkg/errno"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/validator"
)

type AddressHandler struct {
	svc        service.AddressService
	classifier *classifier.Classifier
}

func NewAddressHandler(svc service.AddressService, cls *classifier.Classifier) *AddressHandler {
	if cls == nil {
		cls = classifier.New()
	}
	return &AddressHandler{svc: svc, classifier: cls}
}

// Allocate 获取充值地址
// @Summary 获取充值地址
// @Description 为用户返回 (chain, network, asset) 的充值地址，已有则原样返回，重复调用结果一致
// @Tags Address
// @Accept json
// @Produce json
// @Param request body request.AllocateAddressRequest true "分配参数"
// @Success 200 {object} response.Response{data=model.DepositAddress}
// @Router /api/v1/addresses [post]
func (h *AddressHandler) Allocate(c *gin.Context) {
	var req request.AllocateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	addr, err := h.svc.Allocate(c.Request.Context(), req.UserID, req.Chain, req.Network, req.Asset)
	if err != nil {
		logger.Warn("分配充值地址失败",
			zap.Uint64("user_id", req.UserID),
			zap.String("chain", req.Chain),
			zap.String("network", req.Network),
			zap.String("asset", req.Asset),
			zap.Error(err))
		response.Error(c, translate(err))
		return
	}
	response.Success(c, addr)
}

// List 用户的充值地址
// @Summary 用户的充值地址列表
// @Tags Address
// @Produce json
// @Param user_id query int true "用户 ID"
// @Success 200 {object} response.Response{data=[]model.DepositAddress}
// @Router /api/v1/addresses [get]
func (h *AddressHandler) List(c *gin.Context) {
	var q request.ListAddressesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	rows, err := h.svc.ListByUser(c.Request.Context(), q.UserID)
	if err != nil {
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, rows)
}

// Combinations 可分配的组合
// @Summary 可分配的 (chain, network, asset) 组合
// @Tags Address
// @Produce json
// @Success 200 {object} response.Response{data=[]service.Combination}
// @Router /api/v1/combinations [get]
func (h *AddressHandler) Combinations(c *gin.Context) {
	combos, err := h.svc.Combinations(c.Request.Context())
	if err != nil {
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, combos)
}

// Classify 推断地址所属链
// @Summary 推断地址所属链
// @Description 依次根据网络名、地址格式、派生路径判断，都不命中时返回 unknown
// @Tags Address
// @Accept json
// @Produce json
// @Param request body request.ClassifyRequest true "地址信息"
// @Success 200 {object} response.Response
// @Router /api/v1/classify [post]
func (h *AddressHandler) Classify(c *gin.Context) {
	var req request.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	res := h.classifier.Explain(classifier.Input{
		Address:        req.Address,
		Network:        req.Network,
		DerivationPath: req.DerivationPath,
	})
	response.Success(c, gin.H{
		"chain":  res.Chain,
		"source": res.Source.String(),
		"rule":   res.Rule,
	})
}
