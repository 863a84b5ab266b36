// Package config provides viper-backed configuration for the autodev
// toolchain. Settings live in .autodev/config.yaml at the workspace root,
// with AUTODEV_* environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the workspace state directory.
const DirName = ".autodev"

// ConfigFileName is the YAML config file inside DirName.
const ConfigFileName = "config.yaml"

// v is the package-level viper instance, set by Initialize.
var v *viper.Viper

// Initialize loads .autodev/config.yaml (walking up from the working
// directory) and wires environment overrides. Safe to call when no config
// file exists yet: env vars and defaults still apply.
func Initialize() error {
	nv := viper.New()
	nv.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	nv.SetConfigType("yaml")

	nv.SetEnvPrefix("AUTODEV")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	setDefaults(nv)

	if root, err := FindWorkspaceRoot(); err == nil {
		nv.AddConfigPath(filepath.Join(root, DirName))
		if err := nv.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return fmt.Errorf("reading %s: %w", ConfigFileName, err)
			}
		}
	}

	v = nv
	return nil
}

func setDefaults(nv *viper.Viper) {
	nv.SetDefault("git.auto-push", false)
	nv.SetDefault("git.protected-branches", []string{"main", "master"})
	nv.SetDefault("batch.max-attempts", 3)
	nv.SetDefault("batch.workers", 4)
	nv.SetDefault("batch.breaker-threshold", 5)
	nv.SetDefault("batch.breaker-cooldown", "10m")
	nv.SetDefault("hooks.timeout", "10s")
	nv.SetDefault("llm.model", "claude-haiku-4-5")
	nv.SetDefault("log.level", "info")
}

// GetString returns a string config value, or "" before Initialize.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns a bool config value, or false before Initialize.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns an int config value, or 0 before Initialize.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns a duration config value, or 0 before Initialize.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice returns a string-slice config value.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// AllKeys lists every known config key (defaults, file, env).
func AllKeys() []string {
	if v == nil {
		return nil
	}
	return v.AllKeys()
}

// FindWorkspaceRoot walks up from the current directory looking for a
// .autodev directory and returns the directory containing it.
func FindWorkspaceRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return FindWorkspaceRootFrom(cwd)
}

// FindWorkspaceRootFrom walks up from start looking for a .autodev
// directory.
func FindWorkspaceRootFrom(start string) (string, error) {
	for dir := start; ; dir = filepath.Dir(dir) {
		info, err := os.Stat(filepath.Join(dir, DirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}
		if dir == filepath.Dir(dir) {
			return "", fmt.Errorf("no %s directory found from %s (run 'autodev init' first)", DirName, start)
		}
	}
}

// Dir returns the .autodev directory for a workspace root.
func Dir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, DirName)
}

// StateDir returns the JSON state directory for a workspace root.
func StateDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, DirName, "state")
}

// RuntimeDir returns the per-session runtime directory for a workspace root.
func RuntimeDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, DirName, "runtime")
}

// HooksDir returns the lifecycle hook script directory for a workspace root.
func HooksDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, DirName, "hooks")
}

// LogsDir returns the log directory for a workspace root.
func LogsDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, DirName, "logs")
}
