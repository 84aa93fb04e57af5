package routes

import (
	"github.com/gin-gonic/gin"

	"custody-wallet/internal/handler"
)

func RegisterDepositRoutes(rg *gin.RouterGroup, h *handler.DepositHandler) {
	rg.GET("/deposits", h.Latest)
	rg.GET("/ws/deposits", h.Feed)
}
