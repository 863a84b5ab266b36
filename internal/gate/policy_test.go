package gate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePolicy(t *testing.T) {
	data := []byte(`{
		"hooks": {
			"Stop": {
				"gates": {
					"clean-tree": {"mode": "strict"}
				}
			},
			"SomeFutureHook": {
				"gates": {
					"whatever": {"mode": "soft"}
				}
			}
		}
	}`)

	policy, err := ParsePolicy(data)
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}
	if got := policy.Hooks[HookStop].Gates["clean-tree"].Mode; got != "strict" {
		t.Errorf("clean-tree mode = %q, want strict", got)
	}
	if len(policy.Hooks) != 1 {
		t.Errorf("unknown hook types should be skipped, got %v", policy.Hooks)
	}
}

func TestParsePolicyEmpty(t *testing.T) {
	policy, err := ParsePolicy(nil)
	if err != nil {
		t.Fatalf("ParsePolicy(nil) failed: %v", err)
	}
	if len(policy.Hooks) != 0 {
		t.Errorf("empty input should yield empty policy, got %v", policy.Hooks)
	}

	if _, err := ParsePolicy([]byte(`{bad json`)); err == nil {
		t.Error("malformed policy should fail")
	}
}

func TestLoadPolicy(t *testing.T) {
	workDir := t.TempDir()

	// Missing file yields an empty policy.
	policy, err := LoadPolicy(workDir)
	if err != nil {
		t.Fatalf("LoadPolicy on empty workspace failed: %v", err)
	}
	if len(policy.Hooks) != 0 {
		t.Errorf("missing policy file should yield empty policy, got %v", policy.Hooks)
	}

	dir := filepath.Join(workDir, ".autodev")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := `{"hooks":{"PreToolUse":{"gates":{"workspace-boundary":{"mode":"strict"}}}}}`
	if err := os.WriteFile(filepath.Join(dir, "gates.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write gates.json: %v", err)
	}

	policy, err = LoadPolicy(workDir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if got := policy.Hooks[HookPreToolUse].Gates["workspace-boundary"].Mode; got != "strict" {
		t.Errorf("workspace-boundary mode = %q, want strict", got)
	}
}

func TestApplyPolicy(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltinGates(reg)

	policy := &Policy{
		Hooks: map[HookType]HookPolicy{
			HookStop: {
				Gates: map[string]GatePolicy{
					"clean-tree":  {Mode: "strict"},
					"review":      {Disabled: true},
					"nonexistent": {Mode: "strict"},
				},
			},
		},
	}
	ApplyPolicy(reg, policy)

	if got := reg.Get("clean-tree").Mode; got != GateModeStrict {
		t.Errorf("clean-tree mode = %q, want strict", got)
	}
	if reg.Get("review") != nil {
		t.Error("disabled gate should be unregistered")
	}
	if reg.Get("tests-pass").Mode != GateModeStrict {
		t.Error("untouched gates should keep their mode")
	}

	// nil policy is a no-op
	ApplyPolicy(reg, nil)
}

func TestDefaultPolicyMatchesBuiltins(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltinGates(reg)

	policy := DefaultPolicy()
	for hook, hookPolicy := range policy.Hooks {
		for gateID, gatePolicy := range hookPolicy.Gates {
			g := reg.Get(gateID)
			if g == nil {
				t.Errorf("default policy names unregistered gate %q", gateID)
				continue
			}
			if g.Hook != hook {
				t.Errorf("gate %q hook = %q, policy says %q", gateID, g.Hook, hook)
			}
			if string(g.Mode) != gatePolicy.Mode {
				t.Errorf("gate %q mode = %q, policy says %q", gateID, g.Mode, gatePolicy.Mode)
			}
		}
	}
}
