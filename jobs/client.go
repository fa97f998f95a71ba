package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/notify"
)

// Client enqueues tasks. With ASYNC_EMAIL on it is the deferred notify.Sender for order
// confirmations.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSendEmail queues a rendered email.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Send implements notify.Sender. Only the enqueue can fail here; delivery errors
// surface in the worker logs and job metrics.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if _, err := c.EnqueueSendEmail(ctx, SendEmailPayload{To: msg.To, Subject: msg.Subject, HTML: msg.HTML}); err != nil {
		return fmt.Errorf("%w: enqueue: %v", notify.ErrSend, err)
	}
	return nil
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
