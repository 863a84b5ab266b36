package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig mirrors config.yaml's on-disk layout for direct reads.
// Viper flattens and merges sources, so it cannot distinguish a
// malformed file from an absent one; diagnostics parse the file through
// this struct to report problems precisely.
type LocalConfig struct {
	Actor string `yaml:"actor"`
	Log   struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Git struct {
		AutoPush          bool     `yaml:"auto-push"`
		ProtectedBranches []string `yaml:"protected-branches"`
	} `yaml:"git"`
	Batch struct {
		Workers          int    `yaml:"workers"`
		MaxAttempts      int    `yaml:"max-attempts"`
		BreakerThreshold int    `yaml:"breaker-threshold"`
		BreakerCooldown  string `yaml:"breaker-cooldown"`
	} `yaml:"batch"`
	Hooks struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"hooks"`
	LLM struct {
		Model string `yaml:"model"`
	} `yaml:"llm"`
}

// LoadLocalConfig reads and parses config.yaml directly from the given
// .autodev directory. A missing file yields an empty config; a present
// but unparseable one is an error.
func LoadLocalConfig(autodevDir string) (*LocalConfig, error) {
	configPath := filepath.Join(autodevDir, ConfigFileName)
	data, err := os.ReadFile(configPath) // #nosec G304 -- path derived from workspace dir
	if err != nil {
		if os.IsNotExist(err) {
			return &LocalConfig{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}
