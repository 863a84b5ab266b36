package gate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseHookType(t *testing.T) {
	tests := []struct {
		input   string
		want    HookType
		wantErr bool
	}{
		{"Stop", HookStop, false},
		{"stop", HookStop, false},
		{"STOP", HookStop, false},
		{"PreToolUse", HookPreToolUse, false},
		{"pretooluse", HookPreToolUse, false},
		{"UserPromptSubmit", HookUserPromptSubmit, false},
		{"PreCompact", HookPreCompact, false},
		{"invalid", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHookType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseHookType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseHookType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMarkAndCheckGate(t *testing.T) {
	workDir := t.TempDir()
	sessionID := "session-1"

	if IsGateSatisfied(workDir, sessionID, "tests-pass") {
		t.Error("gate should not be satisfied before marking")
	}

	if err := MarkGate(workDir, sessionID, "tests-pass"); err != nil {
		t.Fatalf("MarkGate failed: %v", err)
	}

	if !IsGateSatisfied(workDir, sessionID, "tests-pass") {
		t.Error("gate should be satisfied after marking")
	}

	path := filepath.Join(workDir, ".autodev", "runtime", "gates", sessionID, "tests-pass")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("marker file should exist at %s: %v", path, err)
	}
}

func TestMarkGateRejectsTraversal(t *testing.T) {
	workDir := t.TempDir()

	if err := MarkGate(workDir, "../../etc", "tests-pass"); err == nil {
		t.Error("session ID with traversal should be rejected")
	}
	if err := MarkGate(workDir, "session-1", "../escape"); err == nil {
		t.Error("gate ID with traversal should be rejected")
	}
	if IsGateSatisfied(workDir, "../../etc", "tests-pass") {
		t.Error("invalid session ID should never read as satisfied")
	}
}

func TestClearGate(t *testing.T) {
	workDir := t.TempDir()
	sessionID := "session-2"

	if err := MarkGate(workDir, sessionID, "review"); err != nil {
		t.Fatalf("MarkGate failed: %v", err)
	}
	ClearGate(workDir, sessionID, "review")

	if IsGateSatisfied(workDir, sessionID, "review") {
		t.Error("gate should not be satisfied after clearing")
	}
}

func TestClearAllGates(t *testing.T) {
	workDir := t.TempDir()
	sessionID := "session-3"

	for _, id := range []string{"tests-pass", "review", "clean-tree"} {
		if err := MarkGate(workDir, sessionID, id); err != nil {
			t.Fatalf("MarkGate %s failed: %v", id, err)
		}
	}
	ClearAllGates(workDir, sessionID)

	for _, id := range []string{"tests-pass", "review", "clean-tree"} {
		if IsGateSatisfied(workDir, sessionID, id) {
			t.Errorf("gate %s should be cleared", id)
		}
	}
}

func TestEvaluateHookBlocksOnStrictGate(t *testing.T) {
	workDir := t.TempDir()
	reg := NewRegistry()
	_ = reg.Register(&Gate{
		ID:          "approval",
		Hook:        HookStop,
		Description: "approval required",
		Mode:        GateModeStrict,
	})

	resp, err := EvaluateHook(workDir, "s1", HookStop, reg, "")
	if err != nil {
		t.Fatalf("EvaluateHook failed: %v", err)
	}
	if resp.Decision != "block" {
		t.Errorf("decision = %q, want block", resp.Decision)
	}
	if resp.Reason == "" {
		t.Error("blocked response should carry a reason")
	}

	// After marking, the same evaluation allows.
	if err := MarkGate(workDir, "s1", "approval"); err != nil {
		t.Fatalf("MarkGate failed: %v", err)
	}
	resp, err = EvaluateHook(workDir, "s1", HookStop, reg, "")
	if err != nil {
		t.Fatalf("EvaluateHook failed: %v", err)
	}
	if resp.Decision != "allow" {
		t.Errorf("decision = %q, want allow after marking", resp.Decision)
	}
}

func TestEvaluateHookSoftGateWarns(t *testing.T) {
	workDir := t.TempDir()
	reg := NewRegistry()
	_ = reg.Register(&Gate{
		ID:          "tidy",
		Hook:        HookStop,
		Description: "untidy workspace",
		Mode:        GateModeSoft,
		Hint:        "tidy up",
	})

	resp, err := EvaluateHook(workDir, "s2", HookStop, reg, "")
	if err != nil {
		t.Fatalf("EvaluateHook failed: %v", err)
	}
	if resp.Decision != "allow" {
		t.Errorf("soft gate should not block, got %q", resp.Decision)
	}
	if len(resp.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", resp.Warnings)
	}
}

func TestEvaluateHookAutoCheck(t *testing.T) {
	workDir := t.TempDir()
	calls := 0
	reg := NewRegistry()
	_ = reg.Register(&Gate{
		ID:   "auto",
		Hook: HookPreToolUse,
		Mode: GateModeStrict,
		AutoCheck: func(ctx GateContext) bool {
			calls++
			return ctx.ToolInput == "safe"
		},
	})

	resp, err := EvaluateHook(workDir, "s3", HookPreToolUse, reg, "safe")
	if err != nil {
		t.Fatalf("EvaluateHook failed: %v", err)
	}
	if resp.Decision != "allow" {
		t.Errorf("decision = %q, want allow", resp.Decision)
	}

	// Auto-satisfaction must not persist a marker: the next check
	// re-evaluates the condition.
	resp, err = EvaluateHook(workDir, "s3", HookPreToolUse, reg, "unsafe")
	if err != nil {
		t.Fatalf("EvaluateHook failed: %v", err)
	}
	if resp.Decision != "block" {
		t.Errorf("decision = %q, want block on second call", resp.Decision)
	}
	if calls != 2 {
		t.Errorf("AutoCheck calls = %d, want 2", calls)
	}
}

func TestClearGatesForHook(t *testing.T) {
	workDir := t.TempDir()
	sessionID := "session-4"
	reg := NewRegistry()
	_ = reg.Register(&Gate{ID: "stop-gate", Hook: HookStop, Mode: GateModeStrict})
	_ = reg.Register(&Gate{ID: "tool-gate", Hook: HookPreToolUse, Mode: GateModeStrict})

	for _, id := range []string{"stop-gate", "tool-gate"} {
		if err := MarkGate(workDir, sessionID, id); err != nil {
			t.Fatalf("MarkGate %s failed: %v", id, err)
		}
	}

	ClearGatesForHook(workDir, sessionID, HookStop, reg)

	if IsGateSatisfied(workDir, sessionID, "stop-gate") {
		t.Error("Stop gate should be cleared")
	}
	if !IsGateSatisfied(workDir, sessionID, "tool-gate") {
		t.Error("PreToolUse gate should survive a Stop-only clear")
	}
}
