package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akaszubski/autonomous-dev/internal/lockfile"
)

func openTestState(t *testing.T, workDir string) *StateManager {
	t.Helper()
	sm, err := OpenState(workDir, "test")
	if err != nil {
		t.Fatalf("OpenState failed: %v", err)
	}
	t.Cleanup(func() { _ = sm.Close() })
	return sm
}

func TestEnqueueLoadDequeue(t *testing.T) {
	workDir := t.TempDir()

	if err := Enqueue(workDir, Task{ID: "b-task", Command: "true"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := Enqueue(workDir, Task{ID: "a-task", Command: "true"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	tasks, err := LoadTasks(workDir)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("LoadTasks = %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "a-task" || tasks[1].ID != "b-task" {
		t.Errorf("tasks not sorted by name: %v", tasks)
	}

	if err := Dequeue(workDir, "a-task"); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	tasks, err = LoadTasks(workDir)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "b-task" {
		t.Errorf("tasks after dequeue = %v", tasks)
	}

	// Dequeue of a missing task is a no-op.
	if err := Dequeue(workDir, "gone"); err != nil {
		t.Errorf("Dequeue of missing task: %v", err)
	}
}

func TestLoadTasksValidation(t *testing.T) {
	workDir := t.TempDir()
	dir := QueueDir(workDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// ID falls back to the file name.
	body := `{"command": "echo hi"}`
	if err := os.WriteFile(filepath.Join(dir, "from-name"+TaskExt), []byte(body), 0o644); err != nil {
		t.Fatalf("write task: %v", err)
	}
	tasks, err := LoadTasks(workDir)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "from-name" {
		t.Errorf("tasks = %v, want ID from file name", tasks)
	}

	// Empty command is rejected.
	if err := os.WriteFile(filepath.Join(dir, "empty"+TaskExt), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write task: %v", err)
	}
	if _, err := LoadTasks(workDir); err == nil {
		t.Error("task with empty command should be rejected")
	}
}

func TestEnqueueRejectsBadID(t *testing.T) {
	if err := Enqueue(t.TempDir(), Task{ID: "../escape", Command: "true"}); err == nil {
		t.Error("traversal in task ID should be rejected")
	}
}

func TestStateLifecycle(t *testing.T) {
	sm := openTestState(t, t.TempDir())

	if err := sm.Begin("batch-1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := sm.MarkRunning("item-1"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	is, ok := sm.Item("item-1")
	if !ok || is.Status != ItemRunning || is.Attempts != 1 {
		t.Errorf("item = %+v, want running with 1 attempt", is)
	}

	if err := sm.MarkFailed("item-1", "boom", 3); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	is, _ = sm.Item("item-1")
	if is.Status != ItemFailed || is.LastError != "boom" {
		t.Errorf("item = %+v, want failed with error recorded", is)
	}

	// Exhausting attempts goes dead.
	for i := 0; i < 2; i++ {
		if err := sm.MarkRunning("item-1"); err != nil {
			t.Fatalf("MarkRunning failed: %v", err)
		}
		if err := sm.MarkFailed("item-1", "boom", 3); err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
	}
	is, _ = sm.Item("item-1")
	if is.Status != ItemDead {
		t.Errorf("status = %q, want dead after 3 attempts", is.Status)
	}

	// Retry revives it.
	n, err := sm.Retry()
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Retry = %d, want 1", n)
	}
	is, _ = sm.Item("item-1")
	if is.Status != ItemPending || is.Attempts != 0 {
		t.Errorf("item after retry = %+v, want pending with 0 attempts", is)
	}
}

func TestStatePersistsAcrossOpens(t *testing.T) {
	workDir := t.TempDir()

	sm, err := OpenState(workDir, "test")
	if err != nil {
		t.Fatalf("OpenState failed: %v", err)
	}
	if err := sm.MarkRunning("item-9"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := sm.MarkDone("item-9"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	if err := sm.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sm2 := openTestState(t, workDir)
	is, ok := sm2.Item("item-9")
	if !ok || is.Status != ItemDone {
		t.Errorf("reloaded item = %+v, want done", is)
	}
}

func TestOpenStateLockExcludes(t *testing.T) {
	workDir := t.TempDir()

	sm := openTestState(t, workDir)
	_ = sm

	if _, err := OpenState(workDir, "other"); !errors.Is(err, lockfile.ErrLockBusy) {
		t.Errorf("second OpenState error = %v, want ErrLockBusy", err)
	}
}

func TestOpenStateRefusesNewerSchema(t *testing.T) {
	workDir := t.TempDir()
	dir := filepath.Join(workDir, ".autodev", "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "batch.json"), []byte(`{"version": 42}`), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}

	if _, err := OpenState(workDir, "test"); err == nil {
		t.Error("newer schema version should be refused")
	}
}

func TestBreakerTripAndCooldown(t *testing.T) {
	sm := openTestState(t, t.TempDir())
	b := NewBreaker(sm, 2, 50*time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("fresh breaker should allow: %v", err)
	}

	if b.RecordFailure() {
		t.Error("first failure should not trip a threshold-2 breaker")
	}
	if !b.RecordFailure() {
		t.Error("second failure should trip the breaker")
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Allow = %v, want ErrBreakerOpen", err)
	}

	// After the cooldown the breaker half-opens.
	time.Sleep(60 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Errorf("Allow after cooldown = %v, want nil", err)
	}

	b.RecordSuccess()
	snap := sm.Snapshot()
	if snap.Breaker.ConsecutiveFailures != 0 || snap.Breaker.OpenUntil != nil {
		t.Errorf("breaker state after success = %+v, want reset", snap.Breaker)
	}
}

func TestRunnerSuccess(t *testing.T) {
	workDir := t.TempDir()
	sm := openTestState(t, workDir)
	b := NewBreaker(sm, 5, time.Minute)

	var ran atomic.Int32
	r := NewRunner(sm, b, Options{
		Workers:     2,
		MaxAttempts: 3,
		Handler: func(ctx context.Context, task Task) error {
			ran.Add(1)
			return nil
		},
	})

	tasks := []Task{
		{ID: "t1", Command: "true"},
		{ID: "t2", Command: "true"},
		{ID: "t3", Command: "true"},
	}
	summary, err := r.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Done != 3 || len(summary.Failed) != 0 {
		t.Errorf("summary = %+v, want 3 done", summary)
	}
	if ran.Load() != 3 {
		t.Errorf("handler ran %d times, want 3", ran.Load())
	}
}

func TestRunnerRetriesThenDead(t *testing.T) {
	workDir := t.TempDir()
	sm := openTestState(t, workDir)
	b := NewBreaker(sm, 100, time.Minute)

	var attempts atomic.Int32
	r := NewRunner(sm, b, Options{
		Workers:     1,
		MaxAttempts: 2,
		Handler: func(ctx context.Context, task Task) error {
			attempts.Add(1)
			return fmt.Errorf("always fails")
		},
	})

	summary, err := r.Run(context.Background(), []Task{{ID: "t1", Command: "false"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want MaxAttempts", attempts.Load())
	}
	if summary.Dead != 1 || len(summary.Failed) != 1 {
		t.Errorf("summary = %+v, want 1 dead", summary)
	}
	is, _ := sm.Item("t1")
	if is.Status != ItemDead {
		t.Errorf("item status = %q, want dead", is.Status)
	}
}

func TestRunnerResumesSkippingDone(t *testing.T) {
	workDir := t.TempDir()
	sm := openTestState(t, workDir)
	b := NewBreaker(sm, 5, time.Minute)

	if err := sm.MarkRunning("t1"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := sm.MarkDone("t1"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	var ran atomic.Int32
	r := NewRunner(sm, b, Options{
		Handler: func(ctx context.Context, task Task) error {
			ran.Add(1)
			return nil
		},
	})
	summary, err := r.Run(context.Background(), []Task{
		{ID: "t1", Command: "true"},
		{ID: "t2", Command: "true"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Done != 1 {
		t.Errorf("summary = %+v, want 1 skipped and 1 done", summary)
	}
	if ran.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", ran.Load())
	}
}

func TestRunnerDoesNotRescheduleDeadItems(t *testing.T) {
	workDir := t.TempDir()
	sm := openTestState(t, workDir)
	b := NewBreaker(sm, 3, time.Minute)
	tasks := []Task{{ID: "t1", Command: "false"}}

	r := NewRunner(sm, b, Options{
		Workers:     1,
		MaxAttempts: 2,
		Handler: func(ctx context.Context, task Task) error {
			return fmt.Errorf("always fails")
		},
	})
	if _, err := r.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// A second run over the same queue must not revive the dead item,
	// count it as done, or reset the breaker's failure streak.
	var ran atomic.Int32
	r2 := NewRunner(sm, b, Options{
		Workers:     1,
		MaxAttempts: 2,
		Handler: func(ctx context.Context, task Task) error {
			ran.Add(1)
			return nil
		},
	})
	summary, err := r2.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if ran.Load() != 0 {
		t.Errorf("handler ran %d times for a dead item, want 0", ran.Load())
	}
	if summary.Done != 0 || summary.Dead != 1 || len(summary.Failed) != 1 {
		t.Errorf("summary = %+v, want the dead item reported as failed", summary)
	}
	if snap := sm.Snapshot(); snap.Breaker.ConsecutiveFailures == 0 {
		t.Error("breaker failure streak should survive a run that schedules nothing")
	}
}

func TestRunnerBreakerStopsScheduling(t *testing.T) {
	workDir := t.TempDir()
	sm := openTestState(t, workDir)
	b := NewBreaker(sm, 1, time.Minute) // trips on the first failure

	r := NewRunner(sm, b, Options{
		Workers:     1,
		MaxAttempts: 1,
		Handler: func(ctx context.Context, task Task) error {
			return fmt.Errorf("systemic failure")
		},
	})

	tasks := []Task{
		{ID: "t1", Command: "false"},
		{ID: "t2", Command: "false"},
		{ID: "t3", Command: "false"},
	}
	summary, err := r.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.Tripped {
		t.Error("summary should report the tripped breaker")
	}
	if len(summary.Failed) == len(tasks) {
		t.Error("breaker should have stopped some items from running")
	}
}

func TestCommandHandler(t *testing.T) {
	ctx := context.Background()

	if err := CommandHandler(ctx, Task{ID: "ok", Command: "true"}); err != nil {
		t.Errorf("true should succeed: %v", err)
	}
	if err := CommandHandler(ctx, Task{ID: "bad", Command: "false"}); err == nil {
		t.Error("false should fail")
	}
	err := CommandHandler(ctx, Task{ID: "destr", Command: "git push --force origin main"})
	if err == nil {
		t.Error("destructive command should be refused")
	}
}

func TestWatcherSignalsOnNewTask(t *testing.T) {
	workDir := t.TempDir()
	if err := os.MkdirAll(QueueDir(workDir), 0o755); err != nil {
		t.Fatalf("mkdir queue: %v", err)
	}

	w, err := NewWatcher(workDir, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := Enqueue(workDir, Task{ID: "watched", Command: "true"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-w.Wake():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not signal within 5s")
	}
}
