// Package config resolves one immutable run configuration per invocation.
// Built-in defaults are layered under an optional YAML config file,
// environment variables, named model and device profiles, and explicit flag
// overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goodmachinaii/openclaw-rlm-skill/internal/rlm"
)

// Config is the fully resolved run configuration. It is serialized into the
// result JSON as resolved_config for auditability; the API key is excluded.
type Config struct {
	Query string `json:"-"`

	ModelProfile  string `json:"model_profile"`
	DeviceProfile string `json:"pi_profile"`

	RootModel     string `json:"root_model"`
	SubModel      string `json:"sub_model"`
	FallbackModel string `json:"fallback_model"`

	MaxSessions     int    `json:"max_sessions"`
	MaxContextChars int    `json:"max_context_chars"`
	MaxIterations   int    `json:"max_iterations"`
	ContextFormat   string `json:"context_format"`

	Compaction           bool    `json:"compaction"`
	CompactionThreshold  float64 `json:"compaction_threshold"`
	CompactionDowngraded bool    `json:"compaction_downgraded"`

	RequestTimeoutSecs float64 `json:"request_timeout_seconds"`
	MaxRetries         int     `json:"max_retries"`
	RetryBackoffSecs   float64 `json:"retry_backoff_seconds"`

	LogDir      string `json:"log_dir,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`
	SessionsDir string `json:"sessions_dir,omitempty"`
	Workspace   string `json:"workspace"`
	BaseURL     string `json:"base_url"`

	// UseDefaultPrompt is always true: the engine's built-in system prompt
	// is relied on.
	UseDefaultPrompt bool `json:"use_default_prompt"`

	APIKey  string `json:"-"`
	Verbose bool   `json:"-"`
}

// Timeout returns the per-attempt request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs * float64(time.Second))
}

// Backoff returns the retry backoff base.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.RetryBackoffSecs * float64(time.Second))
}

// Options carries the CLI-equivalent inputs to resolution. Pointer fields
// distinguish "not given" from an explicit zero so flags always win over
// profiles and defaults.
type Options struct {
	Query string

	ModelProfile  string
	DeviceProfile string

	RootModel     string
	SubModel      string
	FallbackModel string

	MaxSessions     *int
	MaxContextChars *int
	MaxIterations   *int
	ContextFormat   string

	Compaction          *bool
	CompactionThreshold *float64

	RequestTimeoutSecs *float64
	MaxRetries         *int
	RetryBackoffSecs   *float64

	LogDir      string
	AgentID     string
	SessionsDir string
	Workspace   string
	BaseURL     string

	Verbose bool

	// ConfigFile overrides the default config file location (tests).
	ConfigFile string
}

// modelTriple fills the root/sub/fallback roles for a named model profile.
type modelTriple struct {
	Root, Sub, Fallback string
}

var modelProfiles = map[string]modelTriple{
	"cost":     {Root: "kimi-k2-turbo-preview", Sub: "kimi-k2-turbo-preview", Fallback: "kimi-k2-turbo"},
	"balanced": {Root: "gpt-5.3-codex", Sub: "gpt-5.1-codex-mini", Fallback: "gpt-5.2"},
	"speed":    {Root: "kimi-k2.5", Sub: "kimi-k2-turbo-preview", Fallback: "kimi-k2-turbo"},
}

// deviceProfile tightens resource bounds for constrained hardware and turns
// compaction on so long runs stay within memory.
type deviceProfile struct {
	MaxSessions     int
	MaxContextChars int
	MaxIterations   int
}

var deviceProfiles = map[string]deviceProfile{
	"pi4": {MaxSessions: 10, MaxContextChars: 400_000, MaxIterations: 4},
	"pi8": {MaxSessions: 20, MaxContextChars: 1_000_000, MaxIterations: 8},
}

func defaults() Config {
	home, _ := os.UserHomeDir()
	triple := modelProfiles["balanced"]
	return Config{
		ModelProfile:        "balanced",
		DeviceProfile:       "off",
		RootModel:           triple.Root,
		SubModel:            triple.Sub,
		FallbackModel:       triple.Fallback,
		MaxSessions:         30,
		MaxContextChars:     2_000_000,
		MaxIterations:       20,
		ContextFormat:       "auto",
		Compaction:          false,
		CompactionThreshold: 0.8,
		RequestTimeoutSecs:  120,
		MaxRetries:          3,
		RetryBackoffSecs:    1.5,
		Workspace:           filepath.Join(home, ".openclaw", "workspace"),
		BaseURL:             rlm.DefaultBaseURL,
		UseDefaultPrompt:    true,
	}
}

// Resolve produces the run configuration. Validation failures are
// configuration errors: the caller exits non-zero before any I/O or API call.
func Resolve(opts Options) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, configFilePath(opts.ConfigFile)); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)

	if opts.DeviceProfile != "" && opts.DeviceProfile != "off" {
		dp, ok := deviceProfiles[opts.DeviceProfile]
		if !ok {
			return Config{}, fmt.Errorf("unknown device profile %q (want off, pi4, or pi8)", opts.DeviceProfile)
		}
		// Device profiles only tighten bounds; lower values from the config
		// file survive.
		cfg.DeviceProfile = opts.DeviceProfile
		cfg.MaxSessions = min(cfg.MaxSessions, dp.MaxSessions)
		cfg.MaxContextChars = min(cfg.MaxContextChars, dp.MaxContextChars)
		cfg.MaxIterations = min(cfg.MaxIterations, dp.MaxIterations)
		cfg.Compaction = true
	}

	if opts.ModelProfile != "" {
		triple, ok := modelProfiles[opts.ModelProfile]
		if !ok {
			return Config{}, fmt.Errorf("unknown model profile %q (want cost, balanced, or speed)", opts.ModelProfile)
		}
		cfg.ModelProfile = opts.ModelProfile
		cfg.RootModel = triple.Root
		cfg.SubModel = triple.Sub
		cfg.FallbackModel = triple.Fallback
	}

	applyOverrides(&cfg, opts)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyOverrides(cfg *Config, opts Options) {
	cfg.Query = opts.Query
	cfg.Verbose = opts.Verbose

	if opts.RootModel != "" {
		cfg.RootModel = opts.RootModel
	}
	if opts.SubModel != "" {
		cfg.SubModel = opts.SubModel
	}
	if opts.FallbackModel != "" {
		cfg.FallbackModel = opts.FallbackModel
	}
	if opts.MaxSessions != nil {
		cfg.MaxSessions = *opts.MaxSessions
	}
	if opts.MaxContextChars != nil {
		cfg.MaxContextChars = *opts.MaxContextChars
	}
	if opts.MaxIterations != nil {
		cfg.MaxIterations = *opts.MaxIterations
	}
	if opts.ContextFormat != "" {
		cfg.ContextFormat = opts.ContextFormat
	}
	if opts.Compaction != nil {
		cfg.Compaction = *opts.Compaction
	}
	if opts.CompactionThreshold != nil {
		cfg.CompactionThreshold = *opts.CompactionThreshold
	}
	if opts.RequestTimeoutSecs != nil {
		cfg.RequestTimeoutSecs = *opts.RequestTimeoutSecs
	}
	if opts.MaxRetries != nil {
		cfg.MaxRetries = *opts.MaxRetries
	}
	if opts.RetryBackoffSecs != nil {
		cfg.RetryBackoffSecs = *opts.RetryBackoffSecs
	}
	if opts.LogDir != "" {
		cfg.LogDir = opts.LogDir
	}
	if opts.AgentID != "" {
		cfg.AgentID = opts.AgentID
	}
	if opts.SessionsDir != "" {
		cfg.SessionsDir = opts.SessionsDir
	}
	if opts.Workspace != "" {
		cfg.Workspace = opts.Workspace
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("RLM_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if url := os.Getenv("RLM_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
}

func validate(cfg Config) error {
	if cfg.Query == "" {
		return fmt.Errorf("query is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("missing required credential: set RLM_API_KEY")
	}
	if cfg.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive, got %d", cfg.MaxSessions)
	}
	if cfg.MaxContextChars <= 0 {
		return fmt.Errorf("max context chars must be positive, got %d", cfg.MaxContextChars)
	}
	if cfg.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.CompactionThreshold <= 0 || cfg.CompactionThreshold > 1 {
		return fmt.Errorf("compaction threshold must be in (0,1], got %g", cfg.CompactionThreshold)
	}
	if cfg.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("request timeout must be positive, got %g", cfg.RequestTimeoutSecs)
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive, got %d", cfg.MaxRetries)
	}
	if cfg.RetryBackoffSecs <= 0 {
		return fmt.Errorf("retry backoff must be positive, got %g", cfg.RetryBackoffSecs)
	}
	switch cfg.ContextFormat {
	case "auto", "string", "chunks":
	default:
		return fmt.Errorf("unknown context format %q (want auto, string, or chunks)", cfg.ContextFormat)
	}
	return nil
}

// ApplyCapabilities downgrades features the installed engine does not accept.
// A downgrade is recorded for observability and never raises an error.
func (c *Config) ApplyCapabilities(caps rlm.Capabilities) {
	if c.Compaction && !caps.Compaction {
		c.Compaction = false
		c.CompactionDowngraded = true
	}
}
