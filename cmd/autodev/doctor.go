package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akaszubski/autonomous-dev/internal/batch"
	"github.com/akaszubski/autonomous-dev/internal/config"
	"github.com/akaszubski/autonomous-dev/internal/git"
	"github.com/akaszubski/autonomous-dev/internal/github"
	"github.com/akaszubski/autonomous-dev/internal/lockfile"
	"github.com/akaszubski/autonomous-dev/internal/pipeline"
	"github.com/akaszubski/autonomous-dev/internal/project"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

type checkStatus string

const (
	checkPass checkStatus = "pass"
	checkWarn checkStatus = "warn"
	checkFail checkStatus = "fail"
)

type checkResult struct {
	Name   string      `json:"name"`
	Status checkStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "setup",
	Short:   "Diagnose the workspace and environment",
	Long: `Run environment and state diagnostics: workspace layout, state file
health, stale locks, git availability, and credentials the optional
integrations need. Exits 1 if any check fails.`,
	Run: func(cmd *cobra.Command, _ []string) {
		workDir := mustWorkspace()
		results := runChecks(workDir)

		if jsonOutput {
			outputJSON(results)
		} else {
			fmt.Printf("%s\n\n", ui.RenderHeader("autodev doctor"))
			for _, r := range results {
				sym := ui.RenderPassIcon()
				switch r.Status {
				case checkWarn:
					sym = ui.RenderWarnIcon()
				case checkFail:
					sym = ui.RenderFailIcon()
				}
				line := fmt.Sprintf("%s %s", sym, r.Name)
				if r.Detail != "" {
					line += ": " + r.Detail
				}
				fmt.Println(line)
			}
		}

		for _, r := range results {
			if r.Status == checkFail {
				os.Exit(1)
			}
		}
	},
}

func runChecks(workDir string) []checkResult {
	var results []checkResult
	add := func(name string, status checkStatus, detail string) {
		results = append(results, checkResult{Name: name, Status: status, Detail: detail})
	}

	add("workspace", checkPass, workDir)

	// Layout.
	for _, sub := range []string{"state", "runtime", "hooks", "batch/queue"} {
		path := filepath.Join(config.Dir(workDir), sub)
		if _, err := os.Stat(path); err != nil {
			add("layout "+sub, checkWarn, "missing (re-run 'autodev init')")
		} else {
			add("layout "+sub, checkPass, "")
		}
	}

	// Config parses on its own, outside viper's source merging.
	if cfg, err := config.LoadLocalConfig(config.Dir(workDir)); err != nil {
		add("config file", checkFail, err.Error())
	} else if cfg.Actor == "" && cfg.Log.Level == "" && len(cfg.Git.ProtectedBranches) == 0 {
		add("config file", checkWarn, "empty or missing (defaults in effect)")
	} else {
		add("config file", checkPass, "")
	}

	// Pipeline state loads and is at a known schema.
	if _, err := pipeline.NewManager(workDir); err != nil {
		add("pipeline state", checkFail, err.Error())
	} else {
		add("pipeline state", checkPass, "")
	}

	// Batch state lock: busy is fine, stale is not.
	lockPath := filepath.Join(config.StateDir(workDir), "batch.json.lock")
	if _, err := os.Stat(lockPath); err == nil {
		if lockfile.IsStale(lockPath) {
			add("batch lock", checkWarn, "stale lock from a dead process (safe to delete)")
		} else if holder, herr := lockfile.ReadHolder(lockPath); herr == nil && holder != nil {
			add("batch lock", checkPass, fmt.Sprintf("held by %s (pid %d)", holder.Actor, holder.PID))
		} else {
			add("batch lock", checkPass, "held")
		}
	} else {
		add("batch lock", checkPass, "free")
	}

	// Queue parses.
	if tasks, err := batch.LoadTasks(workDir); err != nil {
		add("batch queue", checkFail, err.Error())
	} else {
		add("batch queue", checkPass, fmt.Sprintf("%d tasks", len(tasks)))
	}

	// Charter.
	if charter, err := project.Load(workDir); err != nil {
		add("project charter", checkFail, err.Error())
	} else if charter == nil {
		add("project charter", checkWarn, "no PROJECT.md (alignment checks disabled)")
	} else if charter.Empty() {
		add("project charter", checkWarn, "PROJECT.md has no goals or non-goals")
	} else {
		add("project charter", checkPass,
			fmt.Sprintf("%d goals, %d non-goals", len(charter.Goals), len(charter.NonGoals)))
	}

	// Git.
	if _, err := exec.LookPath("git"); err != nil {
		add("git binary", checkFail, "git not found in PATH")
	} else {
		add("git binary", checkPass, "")
		if repo, err := git.Open(rootCtx, workDir); err != nil {
			add("git repository", checkWarn, "workspace is not a git repository")
		} else if branch, berr := repo.CurrentBranch(rootCtx); berr == nil {
			add("git repository", checkPass, "on "+branch)
		} else {
			add("git repository", checkPass, "")
		}
	}

	// Credentials for the optional integrations.
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		add("anthropic key", checkWarn, "not set (commit drafting uses fallback messages)")
	} else {
		add("anthropic key", checkPass, "")
	}
	if github.TokenFromEnv() == "" {
		add("github token", checkWarn, "not set ('autodev git pr' unavailable)")
	} else {
		add("github token", checkPass, "")
	}

	return results
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
