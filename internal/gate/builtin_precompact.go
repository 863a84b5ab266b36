package gate

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// RegisterPreCompactGates registers the built-in PreCompact gates.
func RegisterPreCompactGates(reg *Registry) {
	_ = reg.Register(PipelineCheckpointGate())
	_ = reg.Register(DirtyWorkGate())
}

// PipelineCheckpointGate returns the "pipeline-checkpoint" gate definition.
// Warns when a pipeline stage is still running, since compaction can lose
// track of in-flight work.
func PipelineCheckpointGate() *Gate {
	return &Gate{
		ID:          "pipeline-checkpoint",
		Hook:        HookPreCompact,
		Description: "a pipeline stage is still running",
		Mode:        GateModeSoft,
		AutoCheck:   checkNoStageRunning,
		Hint:        "finish or fail the running stage before compaction: autodev pipeline status",
	}
}

// DirtyWorkGate returns the "dirty-work" gate definition.
// Warns when there are uncommitted changes before compaction.
func DirtyWorkGate() *Gate {
	return &Gate{
		ID:          "dirty-work",
		Hook:        HookPreCompact,
		Description: "uncommitted changes may be forgotten after compaction",
		Mode:        GateModeSoft,
		AutoCheck:   checkGitClean, // reuse from builtin.go
		Hint:        "commit before compaction: autodev git commit",
	}
}

// checkNoStageRunning returns true if no pipeline stage is mid-flight.
func checkNoStageRunning(ctx GateContext) bool {
	if ctx.WorkDir == "" {
		return true
	}
	statePath := filepath.Join(ctx.WorkDir, ".autodev", "state", "pipeline.json")
	data, err := os.ReadFile(statePath) // #nosec G304 -- path is built from the workspace root
	if err != nil {
		return true // no pipeline state, nothing in flight
	}

	var state struct {
		Stages map[string]struct {
			Status string `json:"status"`
		} `json:"stages"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return true // unreadable state is the pipeline package's problem
	}
	for _, s := range state.Stages {
		if s.Status == "running" {
			return false
		}
	}
	return true
}
