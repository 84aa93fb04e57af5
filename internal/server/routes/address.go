package routes

import (
	"github.com/gin-gonic/gin"

	"custody-wallet/internal/handler"
)

// RegisterAddressRoutes 充值地址和链识别
func RegisterAddressRoutes(rg *gin.RouterGroup, h *handler.AddressHandler) {
	rg.POST("/addresses", h.Allocate)
	rg.GET("/addresses", h.List)
	rg.GET("/combinations", h.Combinations)
	rg.POST("/classify", h.Classify)
}
