// Package hooks runs user-supplied lifecycle hook scripts. Hooks are
// executable files in .autodev/hooks/ named after the event they handle;
// they receive <session-id> <event> as arguments and the full event
// payload as JSON on stdin.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/akaszubski/autonomous-dev/internal/logging"
)

// Event names, which double as the hook file names.
const (
	EventSessionStart = "session-start"
	EventStagePass    = "stage-pass"
	EventStageFail    = "stage-fail"
	EventBatchDone    = "batch-done"
	EventPreCommit    = "pre-commit"
)

// knownEvents guards against typos: unknown events never run anything.
var knownEvents = map[string]bool{
	EventSessionStart: true,
	EventStagePass:    true,
	EventStageFail:    true,
	EventBatchDone:    true,
	EventPreCommit:    true,
}

// Payload is the JSON document piped to a hook's stdin.
type Payload struct {
	SessionID string            `json:"session_id"`
	Event     string            `json:"event"`
	Stage     string            `json:"stage,omitempty"`
	Item      string            `json:"item,omitempty"`
	Workspace string            `json:"workspace,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Runner handles hook execution.
type Runner struct {
	hooksDir string
	timeout  time.Duration
}

// NewRunner creates a hook runner for the given hooks directory.
func NewRunner(hooksDir string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{hooksDir: hooksDir, timeout: timeout}
}

// hookPath resolves and validates the hook script for an event. Returns
// "" when there is nothing runnable (missing, directory, or not
// executable); hooks are strictly optional, so silence is the contract.
func (r *Runner) hookPath(event string) string {
	if !knownEvents[event] {
		return ""
	}
	path := filepath.Join(r.hooksDir, event)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	if info.Mode()&0o111 == 0 {
		return ""
	}
	return path
}

// HookExists reports whether a runnable hook is installed for event.
func (r *Runner) HookExists(event string) bool {
	return r.hookPath(event) != ""
}

// startedHook is a hook script that has been started but not waited on.
type startedHook struct {
	cmd    *exec.Cmd
	ctx    context.Context
	cancel context.CancelFunc
	stderr *bytes.Buffer
}

// startHook builds and starts the hook process. The caller must follow
// up with superviseHook to reap it and enforce the timeout.
func (r *Runner) startHook(hookPath string, payload Payload) (*startedHook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)

	data, err := json.Marshal(payload)
	if err != nil {
		cancel()
		return nil, err
	}

	// #nosec G204 -- hookPath comes from the controlled .autodev/hooks directory
	cmd := exec.CommandContext(ctx, hookPath, payload.SessionID, payload.Event)
	cmd.Stdin = bytes.NewReader(data)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	setHookProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	return &startedHook{cmd: cmd, ctx: ctx, cancel: cancel, stderr: &stderr}, nil
}

// Run executes the hook for an event if one exists. The script is
// started before Run returns, so a CLI process that exits immediately
// afterwards still leaves the hook running; timeout supervision
// continues in the background. The returned channel closes once the
// hook has finished (right away when there was nothing to run), for
// callers that need the result.
func (r *Runner) Run(payload Payload) <-chan struct{} {
	finished := make(chan struct{})
	path := r.hookPath(payload.Event)
	if path == "" {
		close(finished)
		return finished
	}

	h, err := r.startHook(path, payload)
	if err != nil {
		logging.Named("hooks").Warn("hook start failed",
			zap.String("event", payload.Event),
			zap.Error(err),
		)
		close(finished)
		return finished
	}
	go func() {
		defer close(finished)
		_ = r.superviseHook(h, payload)
	}()
	return finished
}

// RunSync executes the hook for an event if one exists and waits for it.
func (r *Runner) RunSync(payload Payload) error {
	path := r.hookPath(payload.Event)
	if path == "" {
		return nil
	}
	h, err := r.startHook(path, payload)
	if err != nil {
		return err
	}
	return r.superviseHook(h, payload)
}

func logHookResult(payload Payload, stderr *bytes.Buffer, err error) {
	log := logging.Named("hooks")
	if err != nil {
		log.Warn("hook failed",
			zap.String("event", payload.Event),
			zap.String("session", payload.SessionID),
			zap.String("stderr", stderr.String()),
			zap.Error(err),
		)
		return
	}
	log.Debug("hook completed",
		zap.String("event", payload.Event),
		zap.String("session", payload.SessionID),
	)
}
