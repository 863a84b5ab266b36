package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akaszubski/autonomous-dev/internal/gate"
	"github.com/akaszubski/autonomous-dev/internal/git"
	"github.com/akaszubski/autonomous-dev/internal/project"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

var alignCmd = &cobra.Command{
	Use:     "align",
	GroupID: "work",
	Short:   "Check work against the project charter",
	Long: `Alignment checks score prompts, commits, and task descriptions against
the PROJECT.md charter: goal keyword overlap means aligned, a non-goal
hit means misaligned, neither means the work needs a human look.`,
}

func loadCharter() *project.Charter {
	charter, err := project.Load(mustWorkspace())
	if err != nil {
		fatal("%v", err)
	}
	if charter == nil {
		fatal("no PROJECT.md found (run 'autodev init' to scaffold one)")
	}
	return charter
}

func verdictLine(res project.Result) string {
	switch res.Verdict {
	case project.VerdictAligned:
		goals := ""
		if len(res.MatchedGoals) > 0 {
			goals = ", matches: " + strings.Join(res.MatchedGoals, "; ")
		}
		return fmt.Sprintf("%s aligned (score %.2f)%s", ui.RenderPass(ui.IconPass), res.Score, goals)
	case project.VerdictMisaligned:
		return fmt.Sprintf("%s misaligned: touches non-goal: %s",
			ui.RenderFail(ui.IconFail), strings.Join(res.ViolatedNonGoals, "; "))
	default:
		return fmt.Sprintf("%s no goal overlap, needs review", ui.RenderWarn(ui.IconWarn))
	}
}

var alignCheckCmd = &cobra.Command{
	Use:   "check <text>",
	Short: "Score a piece of work against the charter",
	Long: `Score a prompt, commit subject, or task description against the
charter. Exits 1 on misalignment.

When the check passes and a session ID is available, the alignment gate
is marked satisfied for that session.

Examples:
  autodev align check "add retry to the batch runner"
  autodev align check "build a mobile app" --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		charter := loadCharter()
		res := charter.Check(args[0])

		if res.Verdict == project.VerdictAligned {
			if session := sessionID(cmd); session != "" {
				if err := gate.MarkGate(mustWorkspace(), session, "alignment"); err == nil && !jsonOutput {
					info("  %s alignment gate marked for session %s", ui.RenderMuted("·"), session)
				}
			}
		}

		if jsonOutput {
			outputJSON(res)
			if res.Verdict == project.VerdictMisaligned {
				os.Exit(1)
			}
			return
		}

		fmt.Println(verdictLine(res))
		if res.Verdict == project.VerdictMisaligned {
			os.Exit(1)
		}
	},
}

var alignDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Score recent commits against the charter",
	Long: `Score the last N commit subjects against the charter and report how
the recent history tracks it. Exits 1 when drifting: any misaligned
commit, or more unmatched than matched work.`,
	Run: func(cmd *cobra.Command, _ []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		charter := loadCharter()
		repo, err := git.Open(rootCtx, mustWorkspace())
		if err != nil {
			fatal("%v", err)
		}
		subjects, err := repo.RecentSubjects(rootCtx, limit)
		if err != nil {
			fatal("%v", err)
		}

		report := charter.CheckHistory(subjects)

		if jsonOutput {
			outputJSON(report)
			if report.Drifting() {
				os.Exit(1)
			}
			return
		}

		fmt.Printf("%s (last %d commits)\n\n", ui.RenderHeader("Charter drift"), report.Total)
		for _, res := range report.Results {
			fmt.Printf("  %s\n", verdictLine(res))
			fmt.Printf("    %s\n", ui.RenderMuted(res.Text))
		}
		fmt.Printf("\nAligned: %d  Review: %d  Misaligned: %d\n",
			report.Aligned, report.Review, report.Misaligned)

		if report.Drifting() {
			fmt.Printf("%s Recent work is drifting from the charter\n", ui.RenderWarn(ui.IconWarn))
			os.Exit(1)
		}
		info("%s Recent work tracks the charter", ui.RenderPass(ui.IconPass))
	},
}

var alignShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the parsed project charter",
	Run: func(cmd *cobra.Command, _ []string) {
		charter := loadCharter()

		if jsonOutput {
			outputJSON(charter)
			return
		}

		if charter.Title != "" {
			fmt.Printf("%s\n\n", ui.RenderHeader(charter.Title))
		}
		printCharterSection("Goals", charter.Goals)
		printCharterSection("Scope", charter.Scope)
		printCharterSection("Constraints", charter.Constraints)
		printCharterSection("Non-Goals", charter.NonGoals)
	},
}

func printCharterSection(name string, entries []string) {
	if len(entries) == 0 {
		return
	}
	fmt.Printf("%s\n", ui.RenderAccent(name))
	for _, e := range entries {
		fmt.Printf("  - %s\n", e)
	}
	fmt.Println()
}

func init() {
	alignCheckCmd.Flags().String("session", "", "Session ID to mark the alignment gate for")
	alignDriftCmd.Flags().Int("limit", 20, "Number of recent commits to score")

	alignCmd.AddCommand(alignCheckCmd)
	alignCmd.AddCommand(alignDriftCmd)
	alignCmd.AddCommand(alignShowCmd)

	rootCmd.AddCommand(alignCmd)
}
