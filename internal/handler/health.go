package handler

import (
	"context"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"custody-wallet/internal/handler/response"
	"custody-wallet/pkg/errno"
)

// Pinger 依赖的连通性检查
type Pinger func(ctx context.Context) error

// Health 依次检查依赖，任一失败时 status 为 DOWN
type Health struct {
	checks map[string]Pinger
}

func NewHealth(checks map[string]Pinger) *Health {
	return &Health{checks: checks}
}

// Check godoc
// @Summary Check system health
// @Description Get the current health status of the server and its dependencies
// @Tags system
// @Produce  json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Health) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "UP"
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			deps[name] = err.Error()
			status = "DOWN"
			continue
		}
		deps[name] = "UP"
	}

	data := gin.H{
		"status":       status,
		"service":      "custody-wallet",
		"dependencies": deps,
	}
	if status != "UP" {
		response.ErrorWithData(c, errno.InternalServerError.WithMessage("dependency unavailable"), data)
		return
	}
	response.Success(c, data)
}
