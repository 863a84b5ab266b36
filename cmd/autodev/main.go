package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akaszubski/autonomous-dev/internal/config"
	"github.com/akaszubski/autonomous-dev/internal/hooks"
	"github.com/akaszubski/autonomous-dev/internal/logging"
	"github.com/akaszubski/autonomous-dev/internal/telemetry"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

var (
	jsonOutput    bool
	quietFlag     bool
	verboseFlag   bool
	actorFlag     string
	workspaceFlag string

	// workspaceRoot is the resolved workspace for this invocation. Empty
	// when no .autodev directory was found; commands that need one call
	// mustWorkspace.
	workspaceRoot string

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// Flushes buffered log output; set by PersistentPreRun.
	logFlush func()

	// Lifecycle hook runner, available after workspace discovery.
	hookRunner *hooks.Runner
)

// noWorkspaceCommands run without a resolved workspace. "hook" is here
// because it must emit decision JSON even when no workspace exists; it
// handles the missing-workspace case itself.
var noWorkspaceCommands = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
	"__complete": true,
	"hook":       true,
}

func needsWorkspace(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noWorkspaceCommands[c.Name()] {
			return false
		}
	}
	return true
}

// getActor returns the actor for audit trails.
// Priority: --actor flag > AUTODEV_ACTOR env > git user.name > $USER > "unknown".
func getActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if a := os.Getenv("AUTODEV_ACTOR"); a != "" {
		return a
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if gitUser := strings.TrimSpace(string(out)); gitUser != "" {
			return gitUser
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// mustWorkspace returns the resolved workspace root or exits with guidance.
func mustWorkspace() string {
	if workspaceRoot == "" {
		fmt.Fprintln(os.Stderr, "Error: no .autodev workspace found (run 'autodev init' first)")
		os.Exit(1)
	}
	return workspaceRoot
}

func resolveWorkspace() {
	if workspaceFlag != "" {
		root, err := config.FindWorkspaceRootFrom(workspaceFlag)
		if err != nil {
			workspaceRoot = workspaceFlag
			return
		}
		workspaceRoot = root
		return
	}
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		workspaceRoot = ""
		return
	}
	workspaceRoot = root
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initLogging() {
	level := config.GetString("log.level")
	if verboseFlag {
		level = "debug"
	}
	dir := ""
	if workspaceRoot != "" {
		dir = config.LogsDir(workspaceRoot)
	}
	flush, err := logging.Init(logging.Options{Dir: dir, Level: level, Quiet: quietFlag})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
		return
	}
	logFlush = flush
}

func initHookRunner() {
	if workspaceRoot == "" {
		return
	}
	timeout := config.GetDuration("hooks.timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hookRunner = hooks.NewRunner(config.HooksDir(workspaceRoot), timeout)
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor name for audit trail (default: $AUTODEV_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "Workspace root (default: walk up to the nearest .autodev)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(
		&cobra.Group{ID: "agent", Title: "Agent Integration:"},
		&cobra.Group{ID: "work", Title: "Working With The Pipeline:"},
		&cobra.Group{ID: "setup", Title: "Setup & Configuration:"},
	)
}

var rootCmd = &cobra.Command{
	Use:   "autodev",
	Short: "autodev - autonomous development pipeline helper",
	Long: `Pipeline, gate, and batch automation for agent-driven development.

autodev keeps an agent session honest: staged pipeline state, hook-event
gates that block unsafe or premature actions, batch runs with retry and a
circuit breaker, and git automation that never pushes without consent.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("autodev version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Phase 1: universal setup.
		setupSignalContext()
		ui.Init()
		if jsonOutput {
			ui.DisableColor()
		}

		// Phase 2: workspace discovery.
		resolveWorkspace()
		if workspaceRoot == "" && needsWorkspace(cmd) {
			mustWorkspace()
		}

		// Phase 3: observability and hook wiring.
		initLogging()
		if err := telemetry.Init(rootCtx, "autodev", Version,
			telemetry.AttrWorkspace.String(workspaceRoot),
			telemetry.AttrActor.String(getActor()),
		); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}
		initHookRunner()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()

		if logFlush != nil {
			logFlush()
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
