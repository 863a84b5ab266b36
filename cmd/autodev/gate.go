package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akaszubski/autonomous-dev/internal/gate"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

// sessionID returns the agent session ID for gate operations.
// Priority: --session flag > AUTODEV_SESSION_ID > CLAUDE_SESSION_ID.
func sessionID(cmd *cobra.Command) string {
	if cmd != nil {
		if flag, _ := cmd.Flags().GetString("session"); flag != "" {
			return flag
		}
	}
	if id := os.Getenv("AUTODEV_SESSION_ID"); id != "" {
		return id
	}
	return os.Getenv("CLAUDE_SESSION_ID")
}

func mustSessionID(cmd *cobra.Command) string {
	id := sessionID(cmd)
	if id == "" {
		fatal("no session ID (set AUTODEV_SESSION_ID or use --session)")
	}
	return id
}

// buildGateRegistry constructs the gate registry: built-in gates with the
// workspace policy applied on top.
func buildGateRegistry(workDir string) (*gate.Registry, error) {
	reg := gate.NewRegistry()
	gate.RegisterBuiltinGates(reg)

	policy, err := gate.LoadPolicy(workDir)
	if err != nil {
		return nil, err
	}
	gate.ApplyPolicy(reg, policy)
	return reg, nil
}

// defaultPolicyJSON renders the default gate policy for scaffolding.
func defaultPolicyJSON() ([]byte, error) {
	return json.MarshalIndent(gate.DefaultPolicy(), "", "  ")
}

var gateCmd = &cobra.Command{
	Use:     "gate",
	GroupID: "agent",
	Short:   "Manage session gates",
	Long: `Gates block or warn on agent hook events until a condition holds.

Strict gates block the event until marked satisfied (or their auto-check
passes); soft gates only warn. Markers are stored per session under
.autodev/runtime/gates/<session-id>/ and are evaluated by 'autodev hook'.

Gate modes can be overridden per gate in .autodev/gates.json.`,
}

var gateMarkCmd = &cobra.Command{
	Use:   "mark <gate-id>",
	Short: "Mark a session gate as satisfied",
	Long: `Mark a session gate as satisfied for the current agent session.

Examples:
  autodev gate mark tests-pass
  autodev gate mark review --session abc123`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gateID := args[0]
		session := mustSessionID(cmd)
		workDir := mustWorkspace()

		if err := gate.MarkGate(workDir, session, gateID); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"gate_id":    gateID,
				"session_id": session,
				"marked":     true,
			})
			return
		}
		info("%s Gate marked: %s", ui.RenderPass(ui.IconPass), gateID)
	},
}

var gateClearCmd = &cobra.Command{
	Use:   "clear [gate-id]",
	Short: "Clear session gate markers",
	Long: `Clear session gate markers for the current agent session.

Without arguments, clears all gates. With --hook, clears gates for a
specific hook type. With a gate-id argument, clears a single gate.

Examples:
  autodev gate clear
  autodev gate clear tests-pass
  autodev gate clear --hook Stop`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		session := mustSessionID(cmd)
		workDir := mustWorkspace()
		hookFlag, _ := cmd.Flags().GetString("hook")

		switch {
		case len(args) == 1:
			gate.ClearGate(workDir, session, args[0])
			if jsonOutput {
				outputJSON(map[string]interface{}{
					"gate_id":    args[0],
					"session_id": session,
					"cleared":    true,
				})
				return
			}
			info("%s Gate cleared: %s", ui.RenderPass(ui.IconPass), args[0])

		case hookFlag != "":
			hookType, err := gate.ParseHookType(hookFlag)
			if err != nil {
				fatal("%v", err)
			}
			reg, err := buildGateRegistry(workDir)
			if err != nil {
				fatal("%v", err)
			}
			gate.ClearGatesForHook(workDir, session, hookType, reg)
			if jsonOutput {
				outputJSON(map[string]interface{}{
					"hook":       string(hookType),
					"session_id": session,
					"cleared":    true,
				})
				return
			}
			info("%s Cleared all %s gate markers", ui.RenderPass(ui.IconPass), hookType)

		default:
			gate.ClearAllGates(workDir, session)
			if jsonOutput {
				outputJSON(map[string]interface{}{
					"session_id": session,
					"cleared":    "all",
				})
				return
			}
			info("%s Cleared all gate markers", ui.RenderPass(ui.IconPass))
		}
	},
}

var gateCheckCmd = &cobra.Command{
	Use:   "check --hook <type>",
	Short: "Check session gates for a hook type",
	Long: `Evaluate all registered gates for an agent hook type.

Exits 0 when all strict gates are satisfied; exits 1 with the block
reason when any strict gate is unsatisfied. Soft gates produce warnings
but never block.

The --soft flag downgrades every gate to soft for this check (autonomous
mode). The --input flag supplies the tool command for condition gates.

Hook types: Stop, PreToolUse, UserPromptSubmit, PreCompact.

Examples:
  autodev gate check --hook Stop
  autodev gate check --hook PreToolUse --input 'git push --force' --json`,
	Run: func(cmd *cobra.Command, _ []string) {
		hookFlag, _ := cmd.Flags().GetString("hook")
		softMode, _ := cmd.Flags().GetBool("soft")
		toolInput, _ := cmd.Flags().GetString("input")

		if hookFlag == "" {
			fatal("--hook flag is required")
		}
		hookType, err := gate.ParseHookType(hookFlag)
		if err != nil {
			fatal("%v", err)
		}

		session := sessionID(cmd)
		if session == "" {
			// No session means nothing to gate.
			if jsonOutput {
				outputJSON(gate.CheckResponse{Decision: "allow", Reason: "no session"})
			}
			return
		}

		workDir := mustWorkspace()
		reg, err := buildGateRegistry(workDir)
		if err != nil {
			fatal("%v", err)
		}
		if softMode {
			reg = softCopyRegistry(reg, hookType)
		}

		resp, err := gate.EvaluateHook(workDir, session, hookType, reg, toolInput)
		if err != nil {
			fatal("evaluating gates: %v", err)
		}

		if jsonOutput {
			outputJSON(resp)
			if resp.Decision == "block" {
				os.Exit(1)
			}
			return
		}

		if resp.Decision == "block" {
			fmt.Printf("%s Blocked: %s\n", ui.RenderFail(ui.IconFail), resp.Reason)
			for _, r := range resp.Results {
				if !r.Satisfied && r.Mode == gate.GateModeStrict {
					hint := ""
					if r.Hint != "" {
						hint = fmt.Sprintf(" → %s", r.Hint)
					}
					fmt.Printf("  %s %s: %s%s\n", ui.RenderFail("●"), r.GateID, r.Message, hint)
				}
			}
			os.Exit(1)
		}

		for _, w := range resp.Warnings {
			fmt.Printf("  %s %s\n", ui.RenderWarn(ui.IconWarn), w)
		}
		if len(resp.Warnings) == 0 {
			info("%s All %s gates satisfied", ui.RenderPass(ui.IconPass), hookType)
		} else {
			info("%s %s gates allow (with %d warnings)", ui.RenderPass(ui.IconPass), hookType, len(resp.Warnings))
		}
	},
}

var gateListCmd = &cobra.Command{
	Use:   "list [--hook <type>]",
	Short: "List registered gates and their status",
	Long: `List all registered gates, grouped by hook type, with this session's
satisfaction state when a session ID is available.

Examples:
  autodev gate list
  autodev gate list --hook Stop`,
	Run: func(cmd *cobra.Command, _ []string) {
		hookFlag, _ := cmd.Flags().GetString("hook")
		workDir := mustWorkspace()
		session := sessionID(cmd)

		reg, err := buildGateRegistry(workDir)
		if err != nil {
			fatal("%v", err)
		}

		hookTypes := gate.ValidHookTypes()
		if hookFlag != "" {
			hookType, err := gate.ParseHookType(hookFlag)
			if err != nil {
				fatal("%v", err)
			}
			hookTypes = []gate.HookType{hookType}
		}

		type gateStatus struct {
			ID           string        `json:"id"`
			Hook         gate.HookType `json:"hook"`
			Mode         gate.GateMode `json:"mode"`
			Satisfied    bool          `json:"satisfied"`
			Description  string        `json:"description"`
			Hint         string        `json:"hint,omitempty"`
			HasAutoCheck bool          `json:"has_auto_check"`
		}

		var all []gateStatus
		for _, hookType := range hookTypes {
			for _, g := range reg.GatesForHook(hookType) {
				all = append(all, gateStatus{
					ID:           g.ID,
					Hook:         g.Hook,
					Mode:         g.Mode,
					Satisfied:    session != "" && gate.IsGateSatisfied(workDir, session, g.ID),
					Description:  g.Description,
					Hint:         g.Hint,
					HasAutoCheck: g.AutoCheck != nil,
				})
			}
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"session_id": session,
				"gates":      all,
			})
			return
		}

		if len(all) == 0 {
			fmt.Println("No gates registered.")
			return
		}

		if session != "" {
			fmt.Printf("Session: %s\n\n", session)
		}

		currentHook := gate.HookType("")
		for _, s := range all {
			if s.Hook != currentHook {
				currentHook = s.Hook
				fmt.Printf("%s gates:\n", ui.RenderAccent(string(s.Hook)))
			}

			sym := ui.RenderMuted("○")
			label := "pending"
			if s.Satisfied {
				sym = ui.RenderPass("●")
				label = "satisfied"
			} else if s.HasAutoCheck {
				label = "auto"
			}

			modeLabel := ""
			if s.Mode == gate.GateModeSoft {
				modeLabel = " (soft)"
			}
			fmt.Printf("  %s %s: %s%s\n", sym, s.ID, label, modeLabel)
			if !s.Satisfied && s.Hint != "" {
				fmt.Printf("    → %s\n", s.Hint)
			}
		}
	},
}

// softCopyRegistry copies the registry with every gate for the given hook
// type downgraded to soft mode.
func softCopyRegistry(reg *gate.Registry, hookType gate.HookType) *gate.Registry {
	softReg := gate.NewRegistry()
	for _, g := range reg.AllGates() {
		softGate := *g
		if softGate.Hook == hookType {
			softGate.Mode = gate.GateModeSoft
		}
		_ = softReg.Register(&softGate)
	}
	return softReg
}

func init() {
	gateCmd.PersistentFlags().String("session", "", "Session ID (default: $AUTODEV_SESSION_ID)")

	gateClearCmd.Flags().String("hook", "", "Clear gates for a specific hook type")

	gateCheckCmd.Flags().String("hook", "", "Hook type to check (required)")
	gateCheckCmd.Flags().Bool("soft", false, "Treat all gates as soft (warn only)")
	gateCheckCmd.Flags().String("input", "", "Tool command input for condition gates")

	gateListCmd.Flags().String("hook", "", "Filter by hook type")

	gateCmd.AddCommand(gateMarkCmd)
	gateCmd.AddCommand(gateClearCmd)
	gateCmd.AddCommand(gateCheckCmd)
	gateCmd.AddCommand(gateListCmd)

	rootCmd.AddCommand(gateCmd)
}
