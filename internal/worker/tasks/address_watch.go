package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"custody-wallet/internal/worker"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
)

const TypeAddressWatch = "address:watch"

// AddressWatchPayload 注册地址监听的参数
type AddressWatchPayload struct {
	Address        string  `json:"address"`
	Chain          string  `json:"chain"`
	Network        string  `json:"network"`
	Asset          string  `json:"asset"`
	DestinationTag *uint32 `json:"destination_tag,omitempty"`
}

// TaskID 相同地址的监听任务在队列里只保留一个
func (p AddressWatchPayload) TaskID() string {
	id := fmt.Sprintf("watch:%s:%s:%s:%s", p.Chain, p.Network, p.Asset, p.Address)
	if p.DestinationTag != nil {
		id = fmt.Sprintf("%s:%d", id, *p.DestinationTag)
	}
	return id
}

// NewAddressWatchTask 创建地址监听任务
func NewAddressWatchTask(p AddressWatchPayload, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAddressWatch, payload,
		asynq.Queue(worker.QueueWatch),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.TaskID(p.TaskID()),
	), nil
}

// Registrar 上游扫链服务的监听注册接口
type Registrar interface {
	Register(ctx context.Context, p AddressWatchPayload) error
}

// AddressWatchHandler 处理地址监听任务
type AddressWatchHandler struct {
	registrar Registrar
}

func NewAddressWatchHandler(r Registrar) *AddressWatchHandler {
	return &AddressWatchHandler{registrar: r}
}

func (h *AddressWatchHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AddressWatchPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// JSON 解析失败，重试也没用
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.registrar.Register(ctx, p); err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried >= maxRetry {
			// 最后一次也失败了，只告警，不影响已分配的地址
			monitor.Business.WatchRegistrationTotal.WithLabelValues(p.Chain, "failed").Inc()
			logger.Warn("地址监听注册失败",
				zap.String("chain", p.Chain),
				zap.String("address", p.Address),
				zap.Error(err))
		}
		return err
	}

	monitor.Business.WatchRegistrationTotal.WithLabelValues(p.Chain, "ok").Inc()
	logger.Info("地址监听已注册", zap.String("chain", p.Chain), zap.String("address", p.Address))
	return nil
}
