package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akaszubski/autonomous-dev/internal/batch"
	"github.com/akaszubski/autonomous-dev/internal/config"
	"github.com/akaszubski/autonomous-dev/internal/hooks"
	"github.com/akaszubski/autonomous-dev/internal/llm"
	"github.com/akaszubski/autonomous-dev/internal/lockfile"
	"github.com/akaszubski/autonomous-dev/internal/logging"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

var batchCmd = &cobra.Command{
	Use:     "batch",
	GroupID: "work",
	Short:   "Run queued tasks with retry and a circuit breaker",
	Long: `Batch runs execute queued shell tasks with bounded workers, per-item
retry with exponential backoff, and a circuit breaker that stops
scheduling after repeated consecutive failures.

Tasks live as JSON files under .autodev/batch/queue/; run state persists
to .autodev/state/batch.json under a file lock, so interrupted runs
resume where they left off.`,
}

func openBatchState() *batch.StateManager {
	workDir := mustWorkspace()
	sm, err := batch.OpenState(workDir, getActor())
	if err != nil {
		if errors.Is(err, lockfile.ErrLockBusy) {
			lockPath := filepath.Join(config.StateDir(workDir), "batch.json.lock")
			if holder, herr := lockfile.ReadHolder(lockPath); herr == nil && holder != nil {
				fatal("batch state is locked by %s (pid %d)", holder.Actor, holder.PID)
			}
			fatal("batch state is locked by another autodev process")
		}
		fatal("%v", err)
	}
	return sm
}

var batchAddCmd = &cobra.Command{
	Use:   "add <command>",
	Short: "Queue a task for the next batch run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetString("id")
		timeout, _ := cmd.Flags().GetString("timeout")
		if id == "" {
			id = "task-" + uuid.New().String()[:8]
		}

		task := batch.Task{ID: id, Command: args[0], Timeout: timeout}
		if err := batch.Enqueue(mustWorkspace(), task); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(task)
			return
		}
		info("%s Queued: %s", ui.RenderPass(ui.IconPass), id)
	},
}

var batchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all queued tasks",
	Run: func(cmd *cobra.Command, _ []string) {
		workDir := mustWorkspace()

		tasks, err := batch.LoadTasks(workDir)
		if err != nil {
			fatal("%v", err)
		}
		if len(tasks) == 0 {
			if jsonOutput {
				outputJSON(&batch.Summary{})
				return
			}
			info("Queue is empty.")
			return
		}

		sm := openBatchState()

		if sm.Snapshot().BatchID == "" {
			if err := sm.Begin("batch-" + uuid.New().String()[:8]); err != nil {
				_ = sm.Close()
				fatal("%v", err)
			}
		}

		summary := runBatch(sm, tasks)
		_ = sm.Close()

		if jsonOutput {
			outputJSON(summary)
		} else {
			printBatchSummary(summary)
		}
		if summary.Dead > 0 || summary.Tripped {
			if logFlush != nil {
				logFlush()
			}
			os.Exit(1)
		}
	},
}

func runBatch(sm *batch.StateManager, tasks []batch.Task) *batch.Summary {
	threshold := config.GetInt("batch.breaker-threshold")
	cooldown := config.GetDuration("batch.breaker-cooldown")
	breaker := batch.NewBreaker(sm, threshold, cooldown)

	runner := batch.NewRunner(sm, breaker, batch.Options{
		Workers:     config.GetInt("batch.workers"),
		MaxAttempts: config.GetInt("batch.max-attempts"),
	})

	summary, err := runner.Run(rootCtx, tasks)
	if err != nil {
		fatal("%v", err)
	}

	fireBatchDoneHook(sm, summary)
	return summary
}

func fireBatchDoneHook(sm *batch.StateManager, summary *batch.Summary) {
	if hookRunner == nil {
		return
	}
	detail := map[string]string{
		"done": fmt.Sprintf("%d", summary.Done),
		"dead": fmt.Sprintf("%d", summary.Dead),
	}
	if note := summarizeFailures(sm, summary); note != "" {
		detail["failures"] = note
	}
	hookRunner.Run(hooks.Payload{
		SessionID: sessionID(nil),
		Event:     hooks.EventBatchDone,
		Workspace: workspaceRoot,
		Timestamp: time.Now(),
		Detail:    detail,
	})
}

// summarizeFailures asks the model for a human summary of the run's
// failures. Strictly best-effort: no API key or any error means no note.
func summarizeFailures(sm *batch.StateManager, summary *batch.Summary) string {
	if len(summary.Failed) == 0 {
		return ""
	}
	client, err := llm.NewClient("")
	if err != nil {
		return ""
	}

	req := llm.FailureSummaryRequest{BatchID: sm.Snapshot().BatchID}
	for _, f := range summary.Failed {
		req.Failures = append(req.Failures, llm.ItemFailure{
			Item:     f.ID,
			Attempts: f.Attempts,
			Error:    f.Error,
		})
	}

	note, err := client.SummarizeFailures(rootCtx, req)
	if err != nil {
		logging.L().Debug("failure summary skipped", zap.Error(err))
		return ""
	}
	return note
}

func printBatchSummary(summary *batch.Summary) {
	fmt.Printf("%s\n", ui.RenderHeader("Batch run"))
	fmt.Printf("  %s done: %d\n", ui.RenderPassIcon(), summary.Done)
	if summary.Skipped > 0 {
		fmt.Printf("  %s already done: %d\n", ui.RenderSkipIcon(), summary.Skipped)
	}
	if summary.Dead > 0 {
		fmt.Printf("  %s dead: %d\n", ui.RenderFailIcon(), summary.Dead)
	}
	for _, f := range summary.Failed {
		fmt.Printf("    %s %s (%d attempts): %s\n", ui.RenderFail("●"), f.ID, f.Attempts, f.Error)
	}
	if summary.Tripped {
		fmt.Printf("  %s circuit breaker tripped; remaining items were not scheduled\n", ui.RenderWarnIcon())
	}
}

var batchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show batch queue and item state",
	Run: func(cmd *cobra.Command, _ []string) {
		workDir := mustWorkspace()

		tasks, err := batch.LoadTasks(workDir)
		if err != nil {
			fatal("%v", err)
		}

		sm := openBatchState()
		defer func() { _ = sm.Close() }()
		state := sm.Snapshot()

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"queued": tasks,
				"state":  state,
			})
			return
		}

		fmt.Printf("%s\n", ui.RenderHeader("Batch"))
		if state.BatchID != "" {
			fmt.Printf("Batch: %s\n", state.BatchID)
		}
		fmt.Printf("Queued tasks: %d\n", len(tasks))

		if state.Breaker.OpenUntil != nil {
			fmt.Printf("%s Breaker open until %s\n",
				ui.RenderWarnIcon(), state.Breaker.OpenUntil.Format(time.RFC3339))
		}

		if len(state.Items) == 0 {
			return
		}
		fmt.Println()
		ids := make([]string, 0, len(state.Items))
		for id := range state.Items {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			item := state.Items[id]
			sym := ui.RenderMuted("○")
			switch item.Status {
			case batch.ItemDone:
				sym = ui.RenderPass("●")
			case batch.ItemFailed, batch.ItemDead:
				sym = ui.RenderFail("●")
			case batch.ItemRunning:
				sym = ui.RenderWarn("◐")
			}
			line := fmt.Sprintf("  %s %s: %s", sym, id, item.Status)
			if item.Attempts > 0 {
				line += fmt.Sprintf(" (%d attempts)", item.Attempts)
			}
			fmt.Println(line)
			if item.LastError != "" {
				fmt.Printf("      %s\n", ui.RenderMuted(item.LastError))
			}
		}
	},
}

var batchRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset failed and dead items to pending",
	Run: func(cmd *cobra.Command, _ []string) {
		sm := openBatchState()
		defer func() { _ = sm.Close() }()

		n, err := sm.Retry()
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"revived": n})
			return
		}
		info("%s Reset %d items to pending", ui.RenderPass(ui.IconPass), n)
	},
}

var batchResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all batch state, including the circuit breaker",
	Run: func(cmd *cobra.Command, _ []string) {
		sm := openBatchState()
		defer func() { _ = sm.Close() }()

		if err := sm.Reset(); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"reset": true})
			return
		}
		info("%s Batch state cleared", ui.RenderPass(ui.IconPass))
	},
}

var batchWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the queue and run new tasks as they arrive",
	Long: `Watch .autodev/batch/queue/ and run a batch whenever task files are
added or changed. Events are debounced so a burst of writes triggers a
single run. Stop with Ctrl-C.`,
	Run: func(cmd *cobra.Command, _ []string) {
		workDir := mustWorkspace()

		watcher, err := batch.NewWatcher(workDir, batch.DefaultDebounce)
		if err != nil {
			fatal("%v", err)
		}
		defer func() { _ = watcher.Close() }()
		watcher.Start(rootCtx)

		info("Watching %s (Ctrl-C to stop)", batch.QueueDir(workDir))

		for {
			select {
			case <-rootCtx.Done():
				info("Stopped.")
				return
			case <-watcher.Wake():
				tasks, err := batch.LoadTasks(workDir)
				if err != nil {
					logging.L().Warn("loading queue failed", zap.Error(err))
					continue
				}
				if len(tasks) == 0 {
					continue
				}

				sm, err := batch.OpenState(workDir, getActor())
				if err != nil {
					logging.L().Warn("batch state busy, skipping run", zap.Error(err))
					continue
				}
				if sm.Snapshot().BatchID == "" {
					_ = sm.Begin("batch-" + uuid.New().String()[:8])
				}
				summary := runBatch(sm, tasks)
				_ = sm.Close()

				if !jsonOutput {
					printBatchSummary(summary)
				}
			}
		}
	},
}

func init() {
	batchAddCmd.Flags().String("id", "", "Task ID (default: generated)")
	batchAddCmd.Flags().String("timeout", "", "Per-task timeout override (e.g. 5m)")

	batchCmd.AddCommand(batchAddCmd)
	batchCmd.AddCommand(batchRunCmd)
	batchCmd.AddCommand(batchStatusCmd)
	batchCmd.AddCommand(batchRetryCmd)
	batchCmd.AddCommand(batchResetCmd)
	batchCmd.AddCommand(batchWatchCmd)

	rootCmd.AddCommand(batchCmd)
}
