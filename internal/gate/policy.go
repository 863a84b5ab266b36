package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Policy represents a gate policy override, loaded from
// .autodev/gates.json in the workspace:
//
//	{
//	  "hooks": {
//	    "Stop": {
//	      "gates": {
//	        "tests-pass": {"mode": "strict"},
//	        "clean-tree": {"mode": "soft", "disabled": false}
//	      }
//	    }
//	  }
//	}
type Policy struct {
	Hooks map[HookType]HookPolicy `json:"hooks"`
}

// HookPolicy configures gates for a specific hook type.
type HookPolicy struct {
	Gates map[string]GatePolicy `json:"gates"`
}

// GatePolicy configures a single gate.
type GatePolicy struct {
	Mode     string `json:"mode"` // "strict" or "soft"
	Disabled bool   `json:"disabled,omitempty"`
}

// ParsePolicy parses a gate policy from raw JSON.
func ParsePolicy(data []byte) (*Policy, error) {
	if len(data) == 0 {
		return &Policy{}, nil
	}

	// Parse into an intermediate form so unknown hook names can be
	// skipped for forward compatibility.
	var raw struct {
		Hooks map[string]HookPolicy `json:"hooks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing gate policy: %w", err)
	}

	policy := &Policy{Hooks: make(map[HookType]HookPolicy)}
	for hookName, hookPolicy := range raw.Hooks {
		hookType, err := ParseHookType(hookName)
		if err != nil {
			continue
		}
		policy.Hooks[hookType] = hookPolicy
	}
	return policy, nil
}

// LoadPolicy reads the workspace gate policy file. A missing file
// yields an empty policy, not an error.
func LoadPolicy(workDir string) (*Policy, error) {
	path := filepath.Join(workDir, ".autodev", "gates.json")
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the workspace root
	if os.IsNotExist(err) {
		return &Policy{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading gate policy: %w", err)
	}
	return ParsePolicy(data)
}

// ApplyPolicy applies a gate policy to a registry, overriding gate modes
// and removing disabled gates. Gates referenced in the policy but not
// registered are silently ignored, so a policy can configure gates that
// might be added later.
func ApplyPolicy(reg *Registry, policy *Policy) {
	if policy == nil {
		return
	}

	for _, hookPolicy := range policy.Hooks {
		for gateID, gatePolicy := range hookPolicy.Gates {
			g := reg.Get(gateID)
			if g == nil {
				continue
			}
			if gatePolicy.Disabled {
				reg.Unregister(gateID)
				continue
			}
			switch gatePolicy.Mode {
			case "strict":
				g.Mode = GateModeStrict
			case "soft":
				g.Mode = GateModeSoft
			}
		}
	}
}

// DefaultPolicy returns the default gate policy (matches the built-ins).
func DefaultPolicy() *Policy {
	return &Policy{
		Hooks: map[HookType]HookPolicy{
			HookStop: {
				Gates: map[string]GatePolicy{
					"tests-pass": {Mode: "strict"},
					"review":     {Mode: "strict"},
					"clean-tree": {Mode: "soft"},
				},
			},
			HookPreToolUse: {
				Gates: map[string]GatePolicy{
					"destructive-op":     {Mode: "strict"},
					"workspace-boundary": {Mode: "soft"},
				},
			},
			HookPreCompact: {
				Gates: map[string]GatePolicy{
					"pipeline-checkpoint": {Mode: "soft"},
					"dirty-work":          {Mode: "soft"},
				},
			},
			HookUserPromptSubmit: {
				Gates: map[string]GatePolicy{
					"alignment":     {Mode: "soft"},
					"stale-session": {Mode: "soft"},
				},
			},
		},
	}
}
