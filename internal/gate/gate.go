// Package gate implements session-level gates for agent hook events.
//
// Gates use a file-marker system in .autodev/runtime/gates/<session-id>/
// to track which conditions have been satisfied during an agent session.
// A hook event is allowed when every strict gate registered for it is
// satisfied; unsatisfied soft gates only produce warnings.
package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akaszubski/autonomous-dev/internal/safety"
)

// HookType represents an agent hook event type.
type HookType string

const (
	HookStop             HookType = "Stop"
	HookPreToolUse       HookType = "PreToolUse"
	HookUserPromptSubmit HookType = "UserPromptSubmit"
	HookPreCompact       HookType = "PreCompact"
)

// ValidHookTypes returns all valid hook types.
func ValidHookTypes() []HookType {
	return []HookType{HookStop, HookPreToolUse, HookUserPromptSubmit, HookPreCompact}
}

// ParseHookType parses a string into a HookType, case-insensitive.
func ParseHookType(s string) (HookType, error) {
	lower := strings.ToLower(s)
	for _, h := range ValidHookTypes() {
		if strings.ToLower(string(h)) == lower {
			return h, nil
		}
	}
	return "", fmt.Errorf("unknown hook type %q (valid: Stop, PreToolUse, UserPromptSubmit, PreCompact)", s)
}

// GateMode determines whether a gate blocks or warns.
type GateMode string

const (
	GateModeStrict GateMode = "strict" // Block the hook event
	GateModeSoft   GateMode = "soft"   // Warn but allow
)

// GateContext provides runtime context for gate auto-check functions.
type GateContext struct {
	SessionID string
	HookType  HookType
	WorkDir   string
	ToolInput string // for PreToolUse: the command about to be executed
}

// Gate defines a session-level gate that can block or warn on a hook event.
type Gate struct {
	ID          string                     // e.g., "tests-pass", "destructive-op"
	Hook        HookType                   // which hook this gate applies to
	Description string                     // human-readable purpose
	Mode        GateMode                   // strict (block) or soft (warn)
	AutoCheck   func(ctx GateContext) bool // optional: returns true if gate is auto-satisfied
	Hint        string                     // how to satisfy this gate
}

// GateResult holds the outcome of checking a single gate.
type GateResult struct {
	GateID    string   `json:"gate_id"`
	Hook      HookType `json:"hook"`
	Satisfied bool     `json:"satisfied"`
	Mode      GateMode `json:"mode"`
	Message   string   `json:"message,omitempty"`
	Hint      string   `json:"hint,omitempty"`
}

// CheckResponse is the JSON response for a hook gate check.
type CheckResponse struct {
	Decision string       `json:"decision"`           // "allow" or "block"
	Reason   string       `json:"reason,omitempty"`   // why blocked
	Results  []GateResult `json:"results,omitempty"`  // per-gate details
	Warnings []string     `json:"warnings,omitempty"` // soft gate warnings
}

// runtimeGatesDir returns the path to the gates runtime directory.
// Layout: <workdir>/.autodev/runtime/gates/<session-id>/
func runtimeGatesDir(workDir, sessionID string) string {
	return filepath.Join(workDir, ".autodev", "runtime", "gates", sessionID)
}

// markerPath returns the path to a gate marker file.
func markerPath(workDir, sessionID, gateID string) string {
	return filepath.Join(runtimeGatesDir(workDir, sessionID), gateID)
}

// MarkGate marks a gate as satisfied for the given session.
// The session and gate IDs are validated before any path is built so a
// crafted ID cannot escape the runtime directory.
func MarkGate(workDir, sessionID, gateID string) error {
	if err := safety.ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := safety.ValidateItemID(gateID); err != nil {
		return err
	}
	dir := runtimeGatesDir(workDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating gates dir: %w", err)
	}
	f, err := os.Create(markerPath(workDir, sessionID, gateID))
	if err != nil {
		return fmt.Errorf("marking gate %s: %w", gateID, err)
	}
	return f.Close()
}

// ClearGate removes a gate marker for the given session.
func ClearGate(workDir, sessionID, gateID string) {
	if safety.ValidateSessionID(sessionID) != nil || safety.ValidateItemID(gateID) != nil {
		return
	}
	_ = os.Remove(markerPath(workDir, sessionID, gateID))
}

// ClearGatesForHook clears all gate markers for a specific hook type.
// It only removes markers for gates that are registered for that hook.
func ClearGatesForHook(workDir, sessionID string, hookType HookType, reg *Registry) {
	for _, g := range reg.GatesForHook(hookType) {
		ClearGate(workDir, sessionID, g.ID)
	}
}

// ClearAllGates removes all gate markers for the given session.
func ClearAllGates(workDir, sessionID string) {
	if safety.ValidateSessionID(sessionID) != nil {
		return
	}
	_ = os.RemoveAll(runtimeGatesDir(workDir, sessionID))
}

// IsGateSatisfied checks whether a gate marker exists for the given session.
func IsGateSatisfied(workDir, sessionID, gateID string) bool {
	if safety.ValidateSessionID(sessionID) != nil || safety.ValidateItemID(gateID) != nil {
		return false
	}
	_, err := os.Stat(markerPath(workDir, sessionID, gateID))
	return err == nil
}

// CheckGatesForHook evaluates all registered gates for the specified hook type.
// A gate is satisfied if its marker file exists or its AutoCheck function
// returns true. Auto-check results are never persisted as markers, so
// condition gates are re-evaluated on every call.
func CheckGatesForHook(workDir, sessionID string, hookType HookType, reg *Registry, toolInput string) ([]GateResult, error) {
	gates := reg.GatesForHook(hookType)
	results := make([]GateResult, 0, len(gates))

	ctx := GateContext{
		SessionID: sessionID,
		HookType:  hookType,
		WorkDir:   workDir,
		ToolInput: toolInput,
	}

	for _, g := range gates {
		result := GateResult{
			GateID: g.ID,
			Hook:   g.Hook,
			Mode:   g.Mode,
			Hint:   g.Hint,
		}

		// Check marker first
		if IsGateSatisfied(workDir, sessionID, g.ID) {
			result.Satisfied = true
			result.Message = "marked satisfied"
			results = append(results, result)
			continue
		}

		// Try auto-check
		if g.AutoCheck != nil && g.AutoCheck(ctx) {
			result.Satisfied = true
			result.Message = "auto-satisfied"
			results = append(results, result)
			continue
		}

		result.Satisfied = false
		result.Message = g.Description
		results = append(results, result)
	}

	return results, nil
}

// EvaluateHook checks all gates for a hook type and returns a CheckResponse.
// If any strict gate is unsatisfied, the decision is "block".
// Soft unsatisfied gates produce warnings but allow the hook.
func EvaluateHook(workDir, sessionID string, hookType HookType, reg *Registry, toolInput string) (*CheckResponse, error) {
	results, err := CheckGatesForHook(workDir, sessionID, hookType, reg, toolInput)
	if err != nil {
		return nil, err
	}

	resp := &CheckResponse{
		Decision: "allow",
		Results:  results,
	}

	var blockReasons []string
	for _, r := range results {
		if r.Satisfied {
			continue
		}
		switch r.Mode {
		case GateModeStrict:
			blockReasons = append(blockReasons, fmt.Sprintf("%s: %s", r.GateID, r.Message))
		case GateModeSoft:
			warning := fmt.Sprintf("%s: %s", r.GateID, r.Message)
			if r.Hint != "" {
				warning += fmt.Sprintf(" (hint: %s)", r.Hint)
			}
			resp.Warnings = append(resp.Warnings, warning)
		}
	}

	if len(blockReasons) > 0 {
		resp.Decision = "block"
		resp.Reason = strings.Join(blockReasons, "; ")
	}

	return resp, nil
}
