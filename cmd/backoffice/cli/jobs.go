// Package cli holds operator commands for the background queue.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/jobs"
)

// triggers lists the scheduled tasks an operator may run out of band.
var triggers = map[string]func() *asynq.Task{
	jobs.TaskPurchaseBatch:      jobs.NewPurchaseBatchTask,
	jobs.TaskIdempotencyCleanup: jobs.NewIdempotencyCleanupTask,
}

// TriggerNames returns the accepted trigger names in sorted order.
func TriggerNames() []string {
	names := make([]string, 0, len(triggers))
	for name := range triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobsCLI talks to the queue directly, without going through the HTTP API.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the queue behind opts.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases both redis connections.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a scheduled task immediately.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	build, ok := triggers[name]
	if !ok {
		return nil, fmt.Errorf("jobs cli: unsupported job %q (want one of %s)", name, strings.Join(TriggerNames(), ", "))
	}
	return c.client.EnqueueContext(ctx, build())
}

// QueueStats is a snapshot of the default queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Archived  int
	Processed int
	Failed    int
}

// InspectQueue snapshots the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, fmt.Errorf("jobs cli: queue info: %w", err)
	}
	return QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Archived:  info.Archived,
		Processed: info.ProcessedTotal,
		Failed:    info.FailedTotal,
	}, nil
}

// ListArchived returns up to size tasks that will not be retried, most often
// emails the relay refused.
func (c *JobsCLI) ListArchived(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// Retry moves an archived task back to pending.
func (c *JobsCLI) Retry(id string) error {
	if c == nil || c.inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	return c.inspector.RunTask(jobs.QueueDefault, id)
}

// Run executes one operator command and prints its result to out.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: backoffice jobs trigger <task>|stats|archived [n]|retry <id>")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("usage: backoffice jobs trigger %s", strings.Join(TriggerNames(), "|"))
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "queued %s as %s\n", info.Type, info.ID)
	case "stats":
		s, err := c.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d archived=%d processed=%d failed=%d\n",
			s.Queue, s.Pending, s.Active, s.Scheduled, s.Archived, s.Processed, s.Failed)
	case "archived":
		size := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("archived: bad count %q", args[1])
			}
			size = n
		}
		tasks, err := c.ListArchived(size)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.Type, t.LastErr)
		}
	case "retry":
		if len(args) < 2 {
			return errors.New("usage: backoffice jobs retry <task-id>")
		}
		if err := c.Retry(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "requeued %s\n", args[1])
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
