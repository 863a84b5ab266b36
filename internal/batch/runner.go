package batch

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akaszubski/autonomous-dev/internal/logging"
	"github.com/akaszubski/autonomous-dev/internal/safety"
	"github.com/akaszubski/autonomous-dev/internal/telemetry"
)

// Handler executes one task. A nil error marks the item done.
type Handler func(ctx context.Context, task Task) error

// Options configures a batch run.
type Options struct {
	Workers     int           // concurrent workers, default 4
	MaxAttempts int           // attempts per item before it goes dead, default 3
	TaskTimeout time.Duration // per-attempt timeout, default 10m
	Handler     Handler       // defaults to CommandHandler
}

// Summary is the outcome of a batch run.
type Summary struct {
	Total   int          `json:"total"`
	Done    int          `json:"done"`
	Dead    int          `json:"dead"`
	Skipped int          `json:"skipped"` // already done from a previous run
	Tripped bool         `json:"tripped"`
	Failed  []FailedItem `json:"failed,omitempty"`
}

// FailedItem describes an item that exhausted its attempts.
type FailedItem struct {
	ID       string `json:"id"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// Runner drives queued tasks through the worker pool.
type Runner struct {
	sm      *StateManager
	breaker *Breaker
	opts    Options
	log     *zap.Logger
}

// NewRunner creates a Runner over an open state manager.
func NewRunner(sm *StateManager, breaker *Breaker, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 10 * time.Minute
	}
	if opts.Handler == nil {
		opts.Handler = CommandHandler
	}
	batchMetricsOnce.Do(initBatchMetrics)
	return &Runner{sm: sm, breaker: breaker, opts: opts, log: logging.Named("batch")}
}

// Run executes every pending task and returns a summary. Items already
// done in the state file are skipped and dead items are reported as
// failed without being rescheduled, so re-running a batch resumes where
// it left off. A tripped breaker stops new work but does not interrupt
// attempts already in flight.
func (r *Runner) Run(ctx context.Context, tasks []Task) (*Summary, error) {
	summary := &Summary{Total: len(tasks)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	results := make(chan FailedItem, len(tasks))
	done := make(chan string, len(tasks))

	for _, task := range tasks {
		if prev, ok := r.sm.Item(task.ID); ok {
			switch prev.Status {
			case ItemDone:
				summary.Skipped++
				continue
			case ItemDead:
				// Dead items stay dead until an explicit retry.
				summary.Dead++
				summary.Failed = append(summary.Failed, FailedItem{
					ID:       task.ID,
					Attempts: prev.Attempts,
					Error:    prev.LastError,
				})
				continue
			}
		}
		if err := r.breaker.Allow(); err != nil {
			summary.Tripped = true
			r.log.Warn("breaker open, not scheduling remaining items", zap.String("item", task.ID))
			break
		}

		task := task
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.runItem(ctx, task); err != nil {
				state, _ := r.sm.Item(task.ID)
				results <- FailedItem{ID: task.ID, Attempts: state.Attempts, Error: err.Error()}
				if r.breaker.RecordFailure() {
					r.log.Warn("circuit breaker tripped", zap.String("item", task.ID))
				}
				return nil // item failure does not abort the batch
			}
			r.breaker.RecordSuccess()
			done <- task.ID
			return nil
		})
	}

	err := g.Wait()
	close(results)
	close(done)

	for range done {
		summary.Done++
	}
	for f := range results {
		summary.Failed = append(summary.Failed, f)
		if state, ok := r.sm.Item(f.ID); ok && state.Status == ItemDead {
			summary.Dead++
		}
	}
	if r.breaker.Open() {
		summary.Tripped = true
	}
	return summary, err
}

// runItem attempts one task with exponential backoff between attempts,
// up to the remaining attempt budget.
func (r *Runner) runItem(ctx context.Context, task Task) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	var lastErr error
	for {
		state, _ := r.sm.Item(task.ID)
		if state.Attempts >= r.opts.MaxAttempts {
			if lastErr == nil {
				return fmt.Errorf("no attempts remaining for %s", task.ID)
			}
			return lastErr
		}
		if err := r.breaker.Allow(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		if err := r.sm.MarkRunning(task.ID); err != nil {
			return err
		}
		attrs := metric.WithAttributes(telemetry.AttrBatchID.String(r.sm.BatchID()))
		start := time.Now()
		err := r.attempt(ctx, task)
		if batchMetrics.duration != nil {
			batchMetrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		}
		if err == nil {
			if err := r.sm.MarkDone(task.ID); err != nil {
				return err
			}
			if batchMetrics.itemsDone != nil {
				batchMetrics.itemsDone.Add(ctx, 1, attrs)
			}
			r.log.Info("item done", zap.String("item", task.ID))
			return nil
		}

		lastErr = err
		if batchMetrics.itemsFailed != nil {
			batchMetrics.itemsFailed.Add(ctx, 1, attrs)
		}
		if markErr := r.sm.MarkFailed(task.ID, err.Error(), r.opts.MaxAttempts); markErr != nil {
			return markErr
		}
		r.log.Warn("item attempt failed",
			zap.String("item", task.ID),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			return lastErr
		}
		state, _ = r.sm.Item(task.ID)
		if state.Status == ItemDead {
			return lastErr
		}

		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			return lastErr
		}
	}
}

func (r *Runner) attempt(ctx context.Context, task Task) error {
	timeout := r.opts.TaskTimeout
	if task.Timeout != "" {
		if d, err := time.ParseDuration(task.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.opts.Handler(ctx, task)
}

// CommandHandler runs a task's shell command. Destructive git commands
// are refused before anything executes: batch runs are unattended, so
// there is nobody to consent.
func CommandHandler(ctx context.Context, task Task) error {
	if verdict := safety.ClassifyGitCommand(task.Command); verdict.Blocked {
		return fmt.Errorf("refusing destructive command (%s): %s", verdict.Rule, verdict.Reason)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", task.Command) // #nosec G204 -- task commands are operator-authored queue files
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("task timed out: %w", ctx.Err())
		}
		return fmt.Errorf("command failed: %w: %s", err, truncate(string(out), 512))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
