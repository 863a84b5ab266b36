package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akaszubski/autonomous-dev/internal/gate"
	"github.com/akaszubski/autonomous-dev/internal/hooks"
	"github.com/akaszubski/autonomous-dev/internal/logging"
	"github.com/akaszubski/autonomous-dev/internal/project"
)

// hookInput is the JSON document an agent host pipes to 'autodev hook'.
// Unknown fields are ignored so host payload growth never breaks us.
type hookInput struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolInput struct {
		Command string `json:"command,omitempty"`
	} `json:"tool_input"`
}

var hookCmd = &cobra.Command{
	Use:     "hook <event>",
	GroupID: "agent",
	Short:   "Evaluate gates for an agent hook event",
	Long: `Evaluate session gates for an agent hook event and print the decision
as JSON on stdout. Designed to be wired into the agent host's hook
configuration:

  autodev hook Stop
  autodev hook PreToolUse
  autodev hook UserPromptSubmit
  autodev hook PreCompact

The host's event payload is read from stdin as JSON; session_id and
tool_input.command are used when present. Exits 1 when the decision is
"block", 0 otherwise. The decision JSON is always valid, even on
internal errors.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hookType, err := gate.ParseHookType(args[0])
		if err != nil {
			emitDecision(&gate.CheckResponse{Decision: "block", Reason: err.Error()})
		}

		// No workspace means no gates to enforce; still answer in the
		// decision format the host expects rather than bare stderr text.
		if workspaceRoot == "" {
			emitDecision(&gate.CheckResponse{
				Decision: "allow",
				Reason:   "no .autodev workspace found (run 'autodev init' first)",
			})
		}
		workDir := workspaceRoot
		input := readHookStdin()

		session := input.SessionID
		if session == "" {
			session = sessionID(cmd)
		}
		if session == "" {
			// Nothing to gate without a session.
			emitDecision(&gate.CheckResponse{Decision: "allow", Reason: "no session"})
		}

		emitDecision(evaluateHookEvent(workDir, session, hookType, input))
	},
}

// evaluateHookEvent runs the gates for one host event and returns the
// decision. The session activity file is touched only after the gates
// have run, so the staleness check reads the previous prompt's
// timestamp rather than one written microseconds earlier.
func evaluateHookEvent(workDir, session string, hookType gate.HookType, input hookInput) *gate.CheckResponse {
	reg, err := buildGateRegistry(workDir)
	if err != nil {
		// A broken policy file must not brick the session: fall back
		// to the built-in defaults and surface the problem as a warning.
		logging.L().Warn("gate policy load failed, using defaults", zap.Error(err))
		reg = gate.NewRegistry()
		gate.RegisterBuiltinGates(reg)
	}

	resp, err := gate.EvaluateHook(workDir, session, hookType, reg, input.ToolInput.Command)
	if err != nil {
		// Fail closed: an evaluation error means strict gates could
		// not be verified.
		return &gate.CheckResponse{
			Decision: "block",
			Reason:   fmt.Sprintf("gate evaluation failed: %v", err),
		}
	}

	if hookType == gate.HookUserPromptSubmit {
		trackSessionActivity(workDir, session)
		if input.Prompt != "" {
			if warning := checkPromptAlignment(workDir, input.Prompt); warning != "" {
				resp.Warnings = append(resp.Warnings, warning)
			}
		}
	}
	return resp
}

// emitDecision prints the decision JSON and exits. Never returns.
func emitDecision(resp *gate.CheckResponse) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(resp)
	if resp.Decision == "block" {
		os.Exit(1)
	}
	os.Exit(0)
}

// readHookStdin parses the host event payload from stdin. A terminal
// stdin or malformed payload yields an empty input, not an error.
func readHookStdin() hookInput {
	var input hookInput
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return input
	}
	dec := json.NewDecoder(os.Stdin)
	_ = dec.Decode(&input)
	return input
}

// trackSessionActivity records prompt activity for staleness checks and
// fires the session-start lifecycle hook on the first prompt of a session.
func trackSessionActivity(workDir, session string) {
	activityPath := filepath.Join(workDir, ".autodev", "runtime", "activity", session)
	_, statErr := os.Stat(activityPath)
	firstActivity := os.IsNotExist(statErr)

	if err := gate.TouchActivity(workDir, session); err != nil {
		logging.L().Warn("recording session activity failed", zap.Error(err))
		return
	}

	if firstActivity && hookRunner != nil {
		hookRunner.Run(hooks.Payload{
			SessionID: session,
			Event:     hooks.EventSessionStart,
			Workspace: workDir,
			Timestamp: time.Now(),
		})
	}
}

// checkPromptAlignment scores the prompt against the project charter.
// Returns a warning string for misaligned prompts, "" otherwise.
func checkPromptAlignment(workDir, prompt string) string {
	charter, err := project.Load(workDir)
	if err != nil || charter == nil {
		return ""
	}
	result := charter.Check(prompt)
	if result.Verdict != project.VerdictMisaligned {
		return ""
	}
	if len(result.ViolatedNonGoals) > 0 {
		return fmt.Sprintf("alignment: prompt touches a declared non-goal (%s)", result.ViolatedNonGoals[0])
	}
	return "alignment: prompt does not match any charter goal"
}

func init() {
	rootCmd.AddCommand(hookCmd)
}
