//go:build unix

package hooks

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// setHookProcAttr puts the hook in its own process group. Hook scripts
// commonly background children (notifiers, watchers); killing only the
// direct child would leave those running.
func setHookProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// superviseHook waits for a started hook, killing the whole process
// group when the timeout expires.
func (r *Runner) superviseHook(h *startedHook, payload Payload) error {
	defer h.cancel()

	done := make(chan error, 1)
	go func() {
		done <- h.cmd.Wait()
	}()

	select {
	case <-h.ctx.Done():
		if h.cmd.Process != nil {
			if err := syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
				return fmt.Errorf("kill process group: %w", err)
			}
		}
		<-done
		logHookResult(payload, h.stderr, h.ctx.Err())
		return h.ctx.Err()
	case err := <-done:
		logHookResult(payload, h.stderr, err)
		return err
	}
}
