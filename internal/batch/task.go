// Package batch runs queued development tasks through a worker pool
// with per-item retry, a circuit breaker, and a locked JSON state file.
//
// Tasks are JSON files dropped into .autodev/batch/queue/. State lives
// in .autodev/state/batch.json, guarded by an advisory lock so parallel
// autodev processes cannot corrupt it.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/akaszubski/autonomous-dev/internal/safety"
)

// QueueDirName is the task queue directory under .autodev.
const QueueDirName = "batch/queue"

// TaskExt is the file extension for queued task files.
const TaskExt = ".task.json"

// Task is one queued work item.
type Task struct {
	ID      string `json:"id"`
	Command string `json:"command"`           // shell command to run
	Timeout string `json:"timeout,omitempty"` // optional per-task duration
}

// QueueDir returns the queue directory for a workspace root.
func QueueDir(workDir string) string {
	return filepath.Join(workDir, ".autodev", QueueDirName)
}

// LoadTasks reads every task file from the queue directory, sorted by
// file name so runs are deterministic. A missing queue directory is an
// empty queue.
func LoadTasks(workDir string) ([]Task, error) {
	dir := QueueDir(workDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading queue dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), TaskExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path) // #nosec G304 -- path is inside the queue dir
		if err != nil {
			return nil, fmt.Errorf("reading task %s: %w", name, err)
		}
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("parsing task %s: %w", name, err)
		}
		if task.ID == "" {
			task.ID = strings.TrimSuffix(name, TaskExt)
		}
		if err := safety.ValidateItemID(task.ID); err != nil {
			return nil, fmt.Errorf("task %s: %w", name, err)
		}
		if task.Command == "" {
			return nil, fmt.Errorf("task %s: empty command", name)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Enqueue writes a task file into the queue directory.
func Enqueue(workDir string, task Task) error {
	if err := safety.ValidateItemID(task.ID); err != nil {
		return err
	}
	if task.Command == "" {
		return fmt.Errorf("task %s: empty command", task.ID)
	}

	dir := QueueDir(workDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating queue dir: %w", err)
	}
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, task.ID+TaskExt), data, 0o644)
}

// Dequeue removes a task file from the queue directory.
func Dequeue(workDir, id string) error {
	if err := safety.ValidateItemID(id); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(QueueDir(workDir), id+TaskExt))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
