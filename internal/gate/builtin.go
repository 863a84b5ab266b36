package gate

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RegisterBuiltinGates registers every built-in gate on the given registry.
func RegisterBuiltinGates(reg *Registry) {
	RegisterStopGates(reg)
	RegisterPreToolUseGates(reg)
	RegisterUserPromptSubmitGates(reg)
	RegisterPreCompactGates(reg)
}

// RegisterStopGates registers the built-in Stop gates.
func RegisterStopGates(reg *Registry) {
	_ = reg.Register(TestsPassGate())
	_ = reg.Register(ReviewGate())
	_ = reg.Register(CleanTreeGate())
}

// TestsPassGate returns the "tests-pass" gate definition.
// Satisfied when the pipeline's test stage has passed this session.
func TestsPassGate() *Gate {
	return &Gate{
		ID:          "tests-pass",
		Hook:        HookStop,
		Description: "test stage has not passed",
		Mode:        GateModeStrict,
		AutoCheck:   stagePassed("test"),
		Hint:        "run the test stage to completion or mark with: autodev gate mark tests-pass",
	}
}

// ReviewGate returns the "review" gate definition.
// Satisfied when the pipeline's review stage has passed this session.
func ReviewGate() *Gate {
	return &Gate{
		ID:          "review",
		Hook:        HookStop,
		Description: "review stage has not passed",
		Mode:        GateModeStrict,
		AutoCheck:   stagePassed("review"),
		Hint:        "complete the review stage or mark with: autodev gate mark review",
	}
}

// CleanTreeGate returns the "clean-tree" gate definition.
// Satisfied when the git working tree has no uncommitted changes.
func CleanTreeGate() *Gate {
	return &Gate{
		ID:          "clean-tree",
		Hook:        HookStop,
		Description: "working tree has uncommitted changes",
		Mode:        GateModeSoft,
		AutoCheck:   checkGitClean,
		Hint:        "commit your changes with: autodev git commit",
	}
}

// stagePassed returns an auto-check that reads the pipeline state file
// and reports whether the named stage has passed. Sessions without a
// pipeline run fail open so the gate can still be marked manually.
func stagePassed(stage string) func(ctx GateContext) bool {
	return func(ctx GateContext) bool {
		if ctx.WorkDir == "" {
			return false
		}
		statePath := filepath.Join(ctx.WorkDir, ".autodev", "state", "pipeline.json")
		data, err := os.ReadFile(statePath) // #nosec G304 -- path is built from the workspace root
		if err != nil {
			return true // no pipeline state, nothing to enforce
		}

		// Loose parse: only the per-stage status matters here.
		var state struct {
			Stages map[string]struct {
				Status string `json:"status"`
			} `json:"stages"`
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return false
		}
		return state.Stages[stage].Status == "passed"
	}
}

// checkGitClean returns true if the git working tree is clean.
func checkGitClean(ctx GateContext) bool {
	cmd := exec.Command("git", "status", "--porcelain")
	if ctx.WorkDir != "" {
		cmd.Dir = ctx.WorkDir
	}
	output, err := cmd.Output()
	if err != nil {
		// Not a git repo: consider it satisfied rather than blocking
		// non-git sessions.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}
