package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akaszubski/autonomous-dev/internal/config"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

const defaultConfigYAML = `# autodev workspace configuration
git:
  auto-push: false
  protected-branches: [main, master]
batch:
  workers: 4
  max-attempts: 3
  breaker-threshold: 5
  breaker-cooldown: 10m
hooks:
  timeout: 10s
llm:
  model: claude-haiku-4-5
`

const projectTemplate = `# Project Charter

One-paragraph summary of what this project is.

## Goals

- First concrete goal

## Scope

- What this project covers

## Constraints

- Hard constraints the work must respect

## Non-Goals

- What this project deliberately does not do
`

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Initialize autodev in the current directory",
	Long: `Initialize autodev in the current directory by creating a .autodev/
directory with its state, runtime, hooks, and batch queue layout, plus a
default config.yaml and gate policy.

Also writes a PROJECT.md charter template at the workspace root unless one
already exists. The charter drives 'autodev align' checks.`,
	Run: func(cmd *cobra.Command, _ []string) {
		force, _ := cmd.Flags().GetBool("force")

		dir, err := os.Getwd()
		if err != nil {
			fatal("cannot determine working directory: %v", err)
		}
		if workspaceFlag != "" {
			dir = workspaceFlag
		}

		autodevDir := config.Dir(dir)
		if _, err := os.Stat(autodevDir); err == nil && !force {
			fatal("%s already exists (use --force to re-initialize)", autodevDir)
		}

		subdirs := []string{
			"state",
			"runtime/gates",
			"runtime/activity",
			"hooks",
			"batch/queue",
			"logs",
		}
		for _, sub := range subdirs {
			if err := os.MkdirAll(filepath.Join(autodevDir, sub), 0o755); err != nil {
				fatal("creating %s: %v", sub, err)
			}
		}

		created := []string{autodevDir + string(os.PathSeparator)}

		configPath := filepath.Join(autodevDir, config.ConfigFileName)
		if err := writeIfAbsent(configPath, defaultConfigYAML, force); err != nil {
			fatal("writing config: %v", err)
		}
		created = append(created, configPath)

		policyPath := filepath.Join(autodevDir, "gates.json")
		if err := writeDefaultPolicy(policyPath, force); err != nil {
			fatal("writing gate policy: %v", err)
		}
		created = append(created, policyPath)

		charterPath := filepath.Join(dir, "PROJECT.md")
		if _, err := os.Stat(charterPath); os.IsNotExist(err) {
			if err := os.WriteFile(charterPath, []byte(projectTemplate), 0o644); err != nil {
				fatal("writing PROJECT.md: %v", err)
			}
			created = append(created, charterPath)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"workspace": dir,
				"created":   created,
			})
			return
		}

		info("%s Initialized autodev workspace in %s", ui.RenderPass(ui.IconPass), dir)
		for _, path := range created {
			info("  %s %s", ui.RenderMuted("+"), path)
		}
		info("\nNext steps:")
		info("  1. Edit PROJECT.md with your goals and non-goals")
		info("  2. Wire 'autodev hook <event>' into your agent's hook config")
	},
}

func writeIfAbsent(path, content string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func writeDefaultPolicy(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return nil
	}
	data, err := defaultPolicyJSON()
	if err != nil {
		return fmt.Errorf("encoding default policy: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func init() {
	initCmd.Flags().Bool("force", false, "Re-initialize even if .autodev already exists")
	rootCmd.AddCommand(initCmd)
}
