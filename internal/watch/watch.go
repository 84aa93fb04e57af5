// Package watch 保证上游扫链服务监听已分配的充值地址。
// 注册是尽力而为的: 入队失败或上游失败都只记日志，不影响地址分配。
package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"custody-wallet/internal/model"
	"custody-wallet/internal/worker"
	"custody-wallet/internal/worker/tasks"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
)

const enqueueTimeout = 3 * time.Second

// Queue worker.Client 的子集
type Queue interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Ensurer 把监听注册作为异步任务投递，调用方立即返回
type Ensurer struct {
	queue    Queue
	maxRetry int
}

func NewEnsurer(queue Queue, maxRetry int) *Ensurer {
	if maxRetry <= 0 {
		maxRetry = 10
	}
	return &Ensurer{queue: queue, maxRetry: maxRetry}
}

// EnsureWatched 实现 allocator.Ensurer
func (e *Ensurer) EnsureWatched(ctx context.Context, addr *model.DepositAddress) {
	p := PayloadFor(addr)
	// 请求结束后任务仍需投递
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, enqueueTimeout)
		defer cancel()
		if err := e.enqueue(ctx, p); err != nil {
			monitor.Business.WatchRegistrationTotal.WithLabelValues(p.Chain, "enqueue_failed").Inc()
			logger.Warn("地址监听任务入队失败",
				zap.String("chain", p.Chain),
				zap.String("address", p.Address),
				zap.Error(err))
		}
	}()
}

func (e *Ensurer) enqueue(ctx context.Context, p tasks.AddressWatchPayload) error {
	task, err := tasks.NewAddressWatchTask(p, e.maxRetry)
	if err != nil {
		return err
	}
	_, err = e.queue.Enqueue(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}

	// TaskID 冲突: 任务还在排队/重试中就不用再投；已归档 (重试耗尽) 的任务会一直占着 ID，删掉后重投
	info, err := e.queue.GetTaskInfo(worker.QueueWatch, p.TaskID())
	switch {
	case errors.Is(err, asynq.ErrTaskNotFound):
		// 冲突之后刚好被清理
	case err != nil:
		return fmt.Errorf("查询监听任务失败: %w", err)
	case info.State == asynq.TaskStateArchived || info.State == asynq.TaskStateCompleted:
		if err := e.queue.DeleteTask(worker.QueueWatch, p.TaskID()); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("删除归档的监听任务失败: %w", err)
		}
		monitor.Business.WatchRegistrationTotal.WithLabelValues(p.Chain, "requeued").Inc()
	default:
		return nil
	}

	_, err = e.queue.Enqueue(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// 并发的另一次确认已经重投
		return nil
	}
	return err
}

// PayloadFor 充值地址 -> 监听任务参数
func PayloadFor(addr *model.DepositAddress) tasks.AddressWatchPayload {
	return tasks.AddressWatchPayload{
		Address:        addr.Address,
		Chain:          addr.Chain,
		Network:        addr.Network,
		Asset:          addr.Asset,
		DestinationTag: addr.DestinationTag,
	}
}

// Result 上游返回 {success, error?}
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HTTPRegistrar 通过 HTTP 调用上游扫链服务
type HTTPRegistrar struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRegistrar(endpoint string, timeout time.Duration) *HTTPRegistrar {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRegistrar{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (r *HTTPRegistrar) Register(ctx context.Context, p tasks.AddressWatchPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("调用监听服务失败: %w", err)
	}
	defer resp.Body.Close()

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("解析监听服务响应失败 (status %d): %w", resp.StatusCode, err)
	}
	if !res.Success {
		return fmt.Errorf("监听服务拒绝注册: %s", res.Error)
	}
	return nil
}
