package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TaskPurchaseBatch turns pending customer orders into supplier purchase orders.
const TaskPurchaseBatch = "procurement:batch"

// NewPurchaseBatchTask builds the batch task. A failed tick is not retried; the next one
// picks up whatever is still pending.
func NewPurchaseBatchTask() *asynq.Task {
	return asynq.NewTask(TaskPurchaseBatch, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

// PurchaseBatchSpec renders the scheduler expression for interval.
func PurchaseBatchSpec(interval time.Duration) string {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return fmt.Sprintf("@every %s", interval)
}

// Batcher runs one purchase batch.
type Batcher interface {
	RunBatch(ctx context.Context) (procurement.BatchResult, error)
}

// PurchaseBatchJob runs the batcher from the scheduler.
type PurchaseBatchJob struct {
	Batcher Batcher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskPurchaseBatch tasks.
func (j *PurchaseBatchJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Batcher == nil {
		return errors.New("purchase batch: handler not configured")
	}
	tracker := j.Metrics.Track(TaskPurchaseBatch)
	result, err := j.Batcher.RunBatch(shared.WithActor(ctx, "scheduler"))
	if errors.Is(err, procurement.ErrBatchInProgress) {
		tracker.Skip()
		return nil
	}
	if err != nil {
		return tracker.End(err)
	}
	if len(result.Failed) > 0 {
		j.logger().Warn("purchase batch supplier emails failed", slog.Int("failed", len(result.Failed)))
	}
	return tracker.End(nil)
}

func (j *PurchaseBatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
