package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML config file at
// $XDG_CONFIG_HOME/openclaw-rlm/config.yaml. Pointer fields distinguish
// "absent" from an explicit zero.
type fileConfig struct {
	RootModel     *string `yaml:"root_model"`
	SubModel      *string `yaml:"sub_model"`
	FallbackModel *string `yaml:"fallback_model"`

	MaxSessions     *int    `yaml:"max_sessions"`
	MaxContextChars *int    `yaml:"max_context_chars"`
	MaxIterations   *int    `yaml:"max_iterations"`
	ContextFormat   *string `yaml:"context_format"`

	Compaction          *bool    `yaml:"compaction"`
	CompactionThreshold *float64 `yaml:"compaction_threshold"`

	RequestTimeoutSecs *float64 `yaml:"request_timeout_seconds"`
	MaxRetries         *int     `yaml:"max_retries"`
	RetryBackoffSecs   *float64 `yaml:"retry_backoff_seconds"`

	LogDir      *string `yaml:"log_dir"`
	AgentID     *string `yaml:"agent_id"`
	SessionsDir *string `yaml:"sessions_dir"`
	Workspace   *string `yaml:"workspace"`
	BaseURL     *string `yaml:"base_url"`
}

func configFilePath(override string) string {
	if override != "" {
		return override
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "openclaw-rlm", "config.yaml")
}

// applyFile layers the config file onto cfg. A missing file is not an error;
// an unreadable or malformed one is.
func applyFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&cfg.RootModel, fc.RootModel)
	setString(&cfg.SubModel, fc.SubModel)
	setString(&cfg.FallbackModel, fc.FallbackModel)
	setInt(&cfg.MaxSessions, fc.MaxSessions)
	setInt(&cfg.MaxContextChars, fc.MaxContextChars)
	setInt(&cfg.MaxIterations, fc.MaxIterations)
	setString(&cfg.ContextFormat, fc.ContextFormat)
	if fc.Compaction != nil {
		cfg.Compaction = *fc.Compaction
	}
	setFloat(&cfg.CompactionThreshold, fc.CompactionThreshold)
	setFloat(&cfg.RequestTimeoutSecs, fc.RequestTimeoutSecs)
	setInt(&cfg.MaxRetries, fc.MaxRetries)
	setFloat(&cfg.RetryBackoffSecs, fc.RetryBackoffSecs)
	setString(&cfg.LogDir, fc.LogDir)
	setString(&cfg.AgentID, fc.AgentID)
	setString(&cfg.SessionsDir, fc.SessionsDir)
	setString(&cfg.Workspace, fc.Workspace)
	setString(&cfg.BaseURL, fc.BaseURL)
	return nil
}
