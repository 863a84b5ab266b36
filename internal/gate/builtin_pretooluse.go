package gate

import (
	"strings"

	"github.com/akaszubski/autonomous-dev/internal/safety"
)

// RegisterPreToolUseGates registers the built-in PreToolUse gates.
func RegisterPreToolUseGates(reg *Registry) {
	_ = reg.Register(DestructiveOpGate())
	_ = reg.Register(WorkspaceBoundaryGate())
}

// DestructiveOpGate returns the "destructive-op" gate definition.
// Blocks destructive git commands unless explicitly approved for the session.
func DestructiveOpGate() *Gate {
	return &Gate{
		ID:          "destructive-op",
		Hook:        HookPreToolUse,
		Description: "destructive command detected",
		Mode:        GateModeStrict,
		AutoCheck:   checkNotDestructive,
		Hint:        "confirm with the user, then approve with: autodev gate mark destructive-op",
	}
}

// WorkspaceBoundaryGate returns the "workspace-boundary" gate definition.
// Warns when a command references paths outside the workspace.
func WorkspaceBoundaryGate() *Gate {
	return &Gate{
		ID:          "workspace-boundary",
		Hook:        HookPreToolUse,
		Description: "command references paths outside the workspace",
		Mode:        GateModeSoft,
		AutoCheck:   checkWithinWorkspace,
		Hint:        "keep file operations inside the workspace root",
	}
}

// checkNotDestructive returns true if the command in ToolInput is not
// classified as destructive. The classifier also catches destructive
// segments hidden behind && or ; chains.
func checkNotDestructive(ctx GateContext) bool {
	if ctx.ToolInput == "" {
		return true // no command to check
	}
	verdict := safety.ClassifyGitCommand(ctx.ToolInput)
	return !verdict.Blocked
}

// checkWithinWorkspace returns true if every path-like argument in the
// command resolves inside the workspace root. Commands with no path
// arguments, or sessions with no known root, fail open.
func checkWithinWorkspace(ctx GateContext) bool {
	if ctx.ToolInput == "" || ctx.WorkDir == "" {
		return true
	}
	for _, p := range extractPaths(ctx.ToolInput) {
		if _, err := safety.ConfinePath(ctx.WorkDir, p); err != nil {
			return false
		}
	}
	return true
}

// extractPaths pulls path-like arguments out of a command string:
// absolute, home-relative, or parent-relative tokens.
func extractPaths(cmd string) []string {
	var paths []string
	for _, p := range strings.Fields(cmd) {
		if strings.HasPrefix(p, "-") {
			continue // flag
		}
		if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "../") {
			paths = append(paths, p)
		}
	}
	return paths
}
