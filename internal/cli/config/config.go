package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"agentbox/pkg/utils/logger"
)

const (
	DefaultPython    = "python3"
	DefaultStatePath = "configs/agentbox_state.json"
)

// SandboxConfig holds sandbox construction settings.
type SandboxConfig struct {
	Workspace      string   `yaml:"workspace"`
	VirtualRoot    string   `yaml:"virtualRoot"`
	Isolation      string   `yaml:"isolation"`
	Python         string   `yaml:"python"`
	MirrorURL      string   `yaml:"mirrorURL"`
	PipArgs        []string `yaml:"pipArgs"`
	CPUTimeSeconds int      `yaml:"cpuTimeSeconds"`
	MemoryMB       int      `yaml:"memoryMB"`
	AllowedPaths   []string `yaml:"allowedPaths"`
	HelperPath     string   `yaml:"helperPath"`
	SeccompProfile string   `yaml:"seccompProfile"`
}

// REPLConfig holds interactive session settings.
type REPLConfig struct {
	HistoryFile string `yaml:"historyFile"`
	StatePath   string `yaml:"statePath"`
}

// Config holds CLI configuration.
type Config struct {
	Logger  logger.Config `yaml:"logger"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	REPL    REPLConfig    `yaml:"repl"`
}

// Load reads path and fills defaults. A missing file is not an error;
// the zero config plus flags is a valid way to start.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file failed: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.Sandbox.Python == "" {
		cfg.Sandbox.Python = DefaultPython
	}
	if cfg.REPL.StatePath == "" {
		cfg.REPL.StatePath = DefaultStatePath
	}
	if cfg.REPL.HistoryFile == "" {
		cfg.REPL.HistoryFile = defaultHistoryFile()
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentbox_history"
	}
	return filepath.Join(home, ".agentbox_history")
}
