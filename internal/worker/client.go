package worker

import (
	"context"

	"github.com/hibiken/asynq"
)

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(addr, password string, db int) *Client {
	opt := asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	return &Client{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}
}

// Enqueue 未指定队列时进入 default
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// GetTaskInfo 按 TaskID 查询任务状态
func (c *Client) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	return c.inspector.GetTaskInfo(queue, id)
}

// DeleteTask 删除非运行中的任务 (例如重试耗尽后归档的任务)
func (c *Client) DeleteTask(queue, id string) error {
	return c.inspector.DeleteTask(queue, id)
}

func (c *Client) Close() error {
	if err := c.inspector.Close(); err != nil {
		return err
	}
	return c.client.Close()
}
