package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"custody-wallet/internal/handler/request"
	"custody-wallet/internal/handler/response"
	"custody-wallet/internal/verifier"
	"custody-wallet/pkg/errno"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/validator"
)

const defaultMnemonicWords = 24

// SeedCreator 生成并加密保存主密钥，vault.Vault 实现
type SeedCreator interface {
	Create(ctx context.Context, password string, entropyBits int) (masterKeyID string, mnemonic string, err error)
}

type MnemonicHandler struct {
	vault    SeedCreator
	registry *verifier.Registry
}

func NewMnemonicHandler(v SeedCreator, registry *verifier.Registry) *MnemonicHandler {
	return &MnemonicHandler{vault: v, registry: registry}
}

type challengeView struct {
	ID        string    `json:"id"`
	Masked    []string  `json:"masked"`
	Positions []int     `json:"positions"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create 创建主密钥
// @Summary 创建主密钥并开始抄写确认
// @Description 助记词只在本次响应中出现，之后需要通过挖空挑战确认用户已抄写
// @Tags Mnemonic
// @Accept json
// @Produce json
// @Param request body request.CreateMnemonicRequest true "加密密码"
// @Success 200 {object} response.Response
// @Router /api/v1/mnemonic/challenges [post]
func (h *MnemonicHandler) Create(c *gin.Context) {
	var req request.CreateMnemonicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	words := req.Words
	if words == 0 {
		words = defaultMnemonicWords
	}

	// 12 词 = 128 bit 熵，每 3 个单词 32 bit
	id, mnemonic, err := h.vault.Create(c.Request.Context(), req.Password, words/3*32)
	if err != nil {
		logger.Error("创建主密钥失败", zap.Error(err))
		response.Error(c, translate(err))
		return
	}

	view, err := h.registry.Start(mnemonic)
	if err != nil {
		response.Error(c, translate(err))
		return
	}

	response.Success(c, gin.H{
		"master_key_id": id,
		"mnemonic":      mnemonic,
		"challenge": challengeView{
			ID:        view.ID,
			Masked:    view.Masked,
			Positions: view.Positions,
			ExpiresAt: view.ExpiresAt,
		},
	})
}

// Verify 提交挖空位置的答案
// @Summary 校验抄写的助记词
// @Description 只返回出错的位置，不返回正确单词；可对同一个挑战重复作答
// @Tags Mnemonic
// @Accept json
// @Produce json
// @Param id path string true "挑战 ID"
// @Param request body request.VerifyMnemonicRequest true "答案"
// @Success 200 {object} response.Response
// @Router /api/v1/mnemonic/challenges/{id}/verify [post]
func (h *MnemonicHandler) Verify(c *gin.Context) {
	var req request.VerifyMnemonicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	res, err := h.registry.Verify(c.Param("id"), req.Answers)
	if err != nil {
		response.Error(c, translate(err))
		return
	}
	if !res.OK {
		response.ErrorWithData(c, errno.ErrVerificationMismatch, gin.H{"wrong": res.Wrong})
		return
	}
	response.Success(c, gin.H{"verified": true})
}
