//go:build windows

package hooks

import (
	"os/exec"
)

// setHookProcAttr is a no-op on Windows: there are no Unix-style
// process groups, so on timeout the started process is killed
// best-effort and detached descendants may survive.
func setHookProcAttr(_ *exec.Cmd) {}

// superviseHook waits for a started hook and enforces the timeout.
func (r *Runner) superviseHook(h *startedHook, payload Payload) error {
	defer h.cancel()

	done := make(chan error, 1)
	go func() {
		done <- h.cmd.Wait()
	}()

	select {
	case <-h.ctx.Done():
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		<-done
		logHookResult(payload, h.stderr, h.ctx.Err())
		return h.ctx.Err()
	case err := <-done:
		logHookResult(payload, h.stderr, err)
		return err
	}
}
