package routes

import (
	"github.com/gin-gonic/gin"

	"custody-wallet/internal/handler"
)

func RegisterMnemonicRoutes(rg *gin.RouterGroup, h *handler.MnemonicHandler) {
	g := rg.Group("/mnemonic")
	// 只应暴露在内网，由运维网关做鉴权
	{
		g.POST("/challenges", h.Create)
		g.POST("/challenges/:id/verify", h.Verify)
	}
}
