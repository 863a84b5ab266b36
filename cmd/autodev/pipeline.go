package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akaszubski/autonomous-dev/internal/hooks"
	"github.com/akaszubski/autonomous-dev/internal/pipeline"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

var pipelineCmd = &cobra.Command{
	Use:     "pipeline",
	GroupID: "work",
	Short:   "Manage the staged development pipeline",
	Long: `The pipeline tracks a work item through fixed stages:

  research → plan → test → implement → review → security → docs

Stages run in order; tests are written before implementation. Stop gates
read this state, so 'autodev pipeline pass test' is what unblocks the
tests-pass gate.`,
}

func openPipeline() *pipeline.Manager {
	m, err := pipeline.NewManager(mustWorkspace())
	if err != nil {
		fatal("%v", err)
	}
	return m
}

func firePipelineHook(event string, stage pipeline.Stage, detail string) {
	if hookRunner == nil {
		return
	}
	hookRunner.Run(hooks.Payload{
		SessionID: sessionID(nil),
		Event:     event,
		Stage:     string(stage),
		Workspace: workspaceRoot,
		Timestamp: time.Now(),
		Detail:    map[string]string{"detail": detail},
	})
}

var pipelineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline stage status",
	Run: func(cmd *cobra.Command, _ []string) {
		m := openPipeline()
		state := m.Snapshot()

		if jsonOutput {
			outputJSON(state)
			return
		}

		fmt.Printf("%s\n", ui.RenderHeader("Pipeline"))
		if state.SessionID != "" {
			fmt.Printf("Session: %s\n", state.SessionID)
		}
		fmt.Println()

		for _, stage := range pipeline.Order {
			ss := state.Stages[stage]
			sym, label := stageGlyph(ss)
			marker := "  "
			if stage == state.Current {
				marker = ui.RenderAccent("→ ")
			}
			line := fmt.Sprintf("%s%s %-10s %s", marker, sym, stage, label)
			if ss != nil && ss.Attempts > 1 {
				line += fmt.Sprintf(" (%d attempts)", ss.Attempts)
			}
			fmt.Println(line)
			if ss != nil && ss.Detail != "" {
				fmt.Printf("     %s\n", ui.RenderMuted(ss.Detail))
			}
		}

		if m.Done() {
			fmt.Printf("\n%s All stages complete\n", ui.RenderPass(ui.IconPass))
		}
	},
}

func stageGlyph(ss *pipeline.StageState) (string, string) {
	if ss == nil {
		return ui.RenderMuted("○"), "pending"
	}
	switch ss.Status {
	case pipeline.StatusPassed:
		return ui.RenderPass("●"), "passed"
	case pipeline.StatusFailed:
		return ui.RenderFail("●"), "failed"
	case pipeline.StatusRunning:
		return ui.RenderWarn("◐"), "running"
	case pipeline.StatusSkipped:
		return ui.RenderMuted(ui.IconSkip), "skipped"
	default:
		return ui.RenderMuted("○"), "pending"
	}
}

var pipelineStartCmd = &cobra.Command{
	Use:   "start <stage>",
	Short: "Mark a stage as running",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		stage, err := pipeline.ParseStage(args[0])
		if err != nil {
			fatal("%v", err)
		}

		m := openPipeline()
		if err := m.Start(stage, force); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"stage": stage, "status": "running"})
			return
		}
		info("%s Stage started: %s", ui.RenderPass(ui.IconPass), stage)
	},
}

var pipelinePassCmd = &cobra.Command{
	Use:   "pass <stage>",
	Short: "Mark a stage as passed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		detail, _ := cmd.Flags().GetString("detail")
		force, _ := cmd.Flags().GetBool("force")
		stage, err := pipeline.ParseStage(args[0])
		if err != nil {
			fatal("%v", err)
		}

		m := openPipeline()
		if err := m.Pass(stage, detail, force); err != nil {
			fatal("%v", err)
		}
		firePipelineHook(hooks.EventStagePass, stage, detail)

		if jsonOutput {
			outputJSON(map[string]interface{}{"stage": stage, "status": "passed", "next": m.Current()})
			return
		}
		info("%s Stage passed: %s", ui.RenderPass(ui.IconPass), stage)
		if !m.Done() {
			info("  Next: %s", m.Current())
		}
	},
}

var pipelineFailCmd = &cobra.Command{
	Use:   "fail <stage>",
	Short: "Mark a stage as failed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		detail, _ := cmd.Flags().GetString("detail")
		force, _ := cmd.Flags().GetBool("force")
		stage, err := pipeline.ParseStage(args[0])
		if err != nil {
			fatal("%v", err)
		}

		m := openPipeline()
		if err := m.Fail(stage, detail, force); err != nil {
			fatal("%v", err)
		}
		firePipelineHook(hooks.EventStageFail, stage, detail)

		if jsonOutput {
			outputJSON(map[string]interface{}{"stage": stage, "status": "failed"})
			return
		}
		info("%s Stage failed: %s", ui.RenderFail(ui.IconFail), stage)
		if detail != "" {
			info("  %s", detail)
		}
	},
}

var pipelineSkipCmd = &cobra.Command{
	Use:   "skip <stage>",
	Short: "Skip a stage",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		force, _ := cmd.Flags().GetBool("force")
		stage, err := pipeline.ParseStage(args[0])
		if err != nil {
			fatal("%v", err)
		}

		m := openPipeline()
		if err := m.Skip(stage, reason, force); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"stage": stage, "status": "skipped", "next": m.Current()})
			return
		}
		info("%s Stage skipped: %s", ui.RenderSkipIcon(), stage)
	},
}

var pipelineAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance to the next stage",
	Long: `Advance the pipeline to the next stage. The current stage must be
passed or skipped unless --force is given, in which case it is recorded
as skipped.`,
	Run: func(cmd *cobra.Command, _ []string) {
		force, _ := cmd.Flags().GetBool("force")

		m := openPipeline()
		next, err := m.Advance(force)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"current": next})
			return
		}
		info("%s Advanced to: %s", ui.RenderPass(ui.IconPass), next)
	},
}

var pipelineResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the pipeline to the first stage",
	Run: func(cmd *cobra.Command, _ []string) {
		session, _ := cmd.Flags().GetString("session")

		m := openPipeline()
		if session != "" {
			if err := m.Begin(session); err != nil {
				fatal("%v", err)
			}
		} else if err := m.Reset(); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"current": m.Current(), "reset": true})
			return
		}
		info("%s Pipeline reset (current: %s)", ui.RenderPass(ui.IconPass), m.Current())
	},
}

func init() {
	pipelineStartCmd.Flags().Bool("force", false, "Start out of order")
	pipelinePassCmd.Flags().String("detail", "", "Note recorded with the result")
	pipelinePassCmd.Flags().Bool("force", false, "Record a result for a non-current stage")
	pipelineFailCmd.Flags().String("detail", "", "Note recorded with the result")
	pipelineFailCmd.Flags().Bool("force", false, "Record a result for a non-current stage")
	pipelineSkipCmd.Flags().String("reason", "", "Why the stage was skipped")
	pipelineSkipCmd.Flags().Bool("force", false, "Record a result for a non-current stage")
	pipelineAdvanceCmd.Flags().Bool("force", false, "Advance even if the current stage has not passed")
	pipelineResetCmd.Flags().String("session", "", "Begin a fresh pipeline bound to this session ID")

	pipelineCmd.AddCommand(pipelineStatusCmd)
	pipelineCmd.AddCommand(pipelineStartCmd)
	pipelineCmd.AddCommand(pipelinePassCmd)
	pipelineCmd.AddCommand(pipelineFailCmd)
	pipelineCmd.AddCommand(pipelineSkipCmd)
	pipelineCmd.AddCommand(pipelineAdvanceCmd)
	pipelineCmd.AddCommand(pipelineResetCmd)

	rootCmd.AddCommand(pipelineCmd)
}
