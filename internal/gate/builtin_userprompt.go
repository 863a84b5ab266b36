package gate

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/akaszubski/autonomous-dev/internal/safety"
)

// DefaultStaleThreshold is the default time after which a session is
// considered stale.
const DefaultStaleThreshold = 30 * time.Minute

// RegisterUserPromptSubmitGates registers the built-in UserPromptSubmit gates.
func RegisterUserPromptSubmitGates(reg *Registry) {
	_ = reg.Register(AlignmentGate())
	_ = reg.Register(StaleSessionGate())
}

// AlignmentGate returns the "alignment" gate definition.
// Warns when the workspace has a PROJECT.md but no alignment check has
// been recorded for the session.
func AlignmentGate() *Gate {
	return &Gate{
		ID:          "alignment",
		Hook:        HookUserPromptSubmit,
		Description: "PROJECT.md alignment not checked this session",
		Mode:        GateModeSoft,
		AutoCheck:   checkNoProjectCharter,
		Hint:        "run: autodev align check",
	}
}

// StaleSessionGate returns the "stale-session" gate definition.
// Warns when the session has been idle past the staleness threshold.
func StaleSessionGate() *Gate {
	return &Gate{
		ID:          "stale-session",
		Hook:        HookUserPromptSubmit,
		Description: "session has been idle for a long time",
		Mode:        GateModeSoft,
		AutoCheck:   checkSessionFresh,
		Hint:        "session context may be stale; re-check pipeline and alignment state",
	}
}

// checkNoProjectCharter returns true when the workspace has no
// PROJECT.md. Workspaces without a charter have nothing to align with,
// so the gate fails open.
func checkNoProjectCharter(ctx GateContext) bool {
	if ctx.WorkDir == "" {
		return true
	}
	_, err := os.Stat(filepath.Join(ctx.WorkDir, "PROJECT.md"))
	return err != nil
}

// checkSessionFresh returns true if the session has had recent activity,
// judged by the timestamp in .autodev/runtime/activity/<session-id>.
func checkSessionFresh(ctx GateContext) bool {
	if ctx.WorkDir == "" || ctx.SessionID == "" {
		return true // can't check, fail open
	}

	activityFile := filepath.Join(ctx.WorkDir, ".autodev", "runtime", "activity", ctx.SessionID)
	data, err := os.ReadFile(activityFile) // #nosec G304 -- session ID is validated by callers
	if err != nil {
		return true // no activity file yet
	}

	ts, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return true
	}

	threshold := DefaultStaleThreshold
	if threshStr := os.Getenv("AUTODEV_STALE_THRESHOLD_MINUTES"); threshStr != "" {
		if mins, err := strconv.Atoi(threshStr); err == nil && mins > 0 {
			threshold = time.Duration(mins) * time.Minute
		}
	}

	return time.Since(time.Unix(ts, 0)) < threshold
}

// TouchActivity updates the activity timestamp for the session.
// Hook handlers call this so staleness tracks real agent activity.
func TouchActivity(workDir, sessionID string) error {
	if err := safety.ValidateSessionID(sessionID); err != nil {
		return err
	}
	dir := filepath.Join(workDir, ".autodev", "runtime", "activity")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return os.WriteFile(filepath.Join(dir, sessionID), []byte(ts), 0o644)
}
