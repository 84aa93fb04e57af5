package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "custody-wallet/docs"
	"custody-wallet/internal/handler"
	"custody-wallet/internal/server/routes"
	"custody-wallet/pkg/monitor"
)

// Handlers HTTP 路由需要的全部 handler
type Handlers struct {
	Health   *handler.Health
	Address  *handler.AddressHandler
	Deposit  *handler.DepositHandler
	Mnemonic *handler.MnemonicHandler // 为 nil 时不暴露助记词接口
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h Handlers) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", h.Health.Check)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	routes.RegisterAddressRoutes(api, h.Address)
	routes.RegisterDepositRoutes(api, h.Deposit)
	if h.Mnemonic != nil {
		routes.RegisterMnemonicRoutes(api, h.Mnemonic)
	}

	return r
}
