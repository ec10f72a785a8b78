package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goodmachinaii/openclaw-rlm-skill/internal/rlm"
)

func baseOptions() Options {
	return Options{
		Query: "What did we talk about yesterday?",
		// Point at a nonexistent config file so resolution stays hermetic.
		ConfigFile: filepath.Join(os.TempDir(), "openclaw-rlm-none", "config.yaml"),
	}
}

func TestResolve_Defaults(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")
	t.Setenv("RLM_BASE_URL", "")

	cfg, err := Resolve(baseOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RootModel != "gpt-5.3-codex" {
		t.Errorf("RootModel = %q, want gpt-5.3-codex", cfg.RootModel)
	}
	if cfg.SubModel != "gpt-5.1-codex-mini" {
		t.Errorf("SubModel = %q", cfg.SubModel)
	}
	if cfg.FallbackModel != "gpt-5.2" {
		t.Errorf("FallbackModel = %q", cfg.FallbackModel)
	}
	if cfg.MaxSessions != 30 {
		t.Errorf("MaxSessions = %d, want 30", cfg.MaxSessions)
	}
	if cfg.MaxContextChars != 2_000_000 {
		t.Errorf("MaxContextChars = %d, want 2000000", cfg.MaxContextChars)
	}
	if cfg.MaxIterations != 20 {
		t.Errorf("MaxIterations = %d, want 20", cfg.MaxIterations)
	}
	if cfg.ContextFormat != "auto" {
		t.Errorf("ContextFormat = %q, want auto", cfg.ContextFormat)
	}
	if cfg.Compaction {
		t.Error("Compaction = true, want false by default")
	}
	if cfg.BaseURL != rlm.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, rlm.DefaultBaseURL)
	}
	if !cfg.UseDefaultPrompt {
		t.Error("UseDefaultPrompt = false, want true")
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
}

func TestResolve_SpeedAndPiProfiles(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	opts := baseOptions()
	opts.ModelProfile = "speed"
	opts.DeviceProfile = "pi4"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RootModel != "kimi-k2.5" {
		t.Errorf("RootModel = %q, want kimi-k2.5", cfg.RootModel)
	}
	if cfg.SubModel != "kimi-k2-turbo-preview" {
		t.Errorf("SubModel = %q", cfg.SubModel)
	}
	if cfg.MaxIterations != 4 {
		t.Errorf("MaxIterations = %d, want 4 under pi4", cfg.MaxIterations)
	}
	if cfg.MaxSessions != 10 {
		t.Errorf("MaxSessions = %d, want 10 under pi4", cfg.MaxSessions)
	}
	if !cfg.Compaction {
		t.Error("Compaction = false, want true under pi4")
	}
	if cfg.ModelProfile != "speed" || cfg.DeviceProfile != "pi4" {
		t.Errorf("profile labels = %q/%q", cfg.ModelProfile, cfg.DeviceProfile)
	}
}

func TestResolve_ExplicitOverridesWinOverProfiles(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	sessions := 3
	opts := baseOptions()
	opts.ModelProfile = "speed"
	opts.DeviceProfile = "pi8"
	opts.RootModel = "my-custom-model"
	opts.MaxSessions = &sessions

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RootModel != "my-custom-model" {
		t.Errorf("RootModel = %q, explicit override should win", cfg.RootModel)
	}
	if cfg.SubModel != "kimi-k2-turbo-preview" {
		t.Errorf("SubModel = %q, profile value should survive", cfg.SubModel)
	}
	if cfg.MaxSessions != 3 {
		t.Errorf("MaxSessions = %d, want explicit 3 over pi8's 20", cfg.MaxSessions)
	}
}

func TestResolve_DeviceProfileNeverRaisesBounds(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "max_sessions: 5\nmax_context_chars: 300000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := baseOptions()
	opts.ConfigFile = path
	opts.DeviceProfile = "pi8"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d, want config-file 5 kept under pi8's 20", cfg.MaxSessions)
	}
	if cfg.MaxContextChars != 300_000 {
		t.Errorf("MaxContextChars = %d, want config-file 300000 kept under pi8's 1000000", cfg.MaxContextChars)
	}
	if cfg.MaxIterations != 8 {
		t.Errorf("MaxIterations = %d, want default 20 lowered to pi8's 8", cfg.MaxIterations)
	}
	if !cfg.Compaction {
		t.Error("Compaction = false, want true under a device profile")
	}
}

func TestResolve_UnknownProfiles(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	opts := baseOptions()
	opts.ModelProfile = "turbo"
	if _, err := Resolve(opts); err == nil || !strings.Contains(err.Error(), "unknown model profile") {
		t.Errorf("err = %v, want unknown model profile", err)
	}

	opts = baseOptions()
	opts.DeviceProfile = "pi16"
	if _, err := Resolve(opts); err == nil || !strings.Contains(err.Error(), "unknown device profile") {
		t.Errorf("err = %v, want unknown device profile", err)
	}
}

func TestResolve_Validation(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	zero := 0
	badThreshold := 1.5

	cases := []struct {
		name    string
		mutate  func(*Options)
		wantSub string
	}{
		{"missing query", func(o *Options) { o.Query = "" }, "query is required"},
		{"zero sessions", func(o *Options) { o.MaxSessions = &zero }, "max sessions"},
		{"zero iterations", func(o *Options) { o.MaxIterations = &zero }, "max iterations"},
		{"bad threshold", func(o *Options) { o.CompactionThreshold = &badThreshold }, "compaction threshold"},
		{"zero retries", func(o *Options) { o.MaxRetries = &zero }, "max retries"},
		{"bad format", func(o *Options) { o.ContextFormat = "xml" }, "context format"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opts := baseOptions()
			c.mutate(&opts)
			_, err := Resolve(opts)
			if err == nil || !strings.Contains(err.Error(), c.wantSub) {
				t.Errorf("err = %v, want substring %q", err, c.wantSub)
			}
		})
	}
}

func TestResolve_MissingAPIKey(t *testing.T) {
	t.Setenv("RLM_API_KEY", "")

	_, err := Resolve(baseOptions())
	if err == nil || !strings.Contains(err.Error(), "RLM_API_KEY") {
		t.Errorf("err = %v, want missing credential error", err)
	}
}

func TestResolve_EnvBaseURL(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")
	t.Setenv("RLM_BASE_URL", "https://proxy.example.com/v1")

	cfg, err := Resolve(baseOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
}

func TestResolve_ConfigFile(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")
	t.Setenv("RLM_BASE_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `root_model: file-model
max_sessions: 12
retry_backoff_seconds: 0.25
log_dir: /tmp/rlm-logs
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := baseOptions()
	opts.ConfigFile = path

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootModel != "file-model" {
		t.Errorf("RootModel = %q, want file-model", cfg.RootModel)
	}
	if cfg.MaxSessions != 12 {
		t.Errorf("MaxSessions = %d, want 12", cfg.MaxSessions)
	}
	if cfg.RetryBackoffSecs != 0.25 {
		t.Errorf("RetryBackoffSecs = %g", cfg.RetryBackoffSecs)
	}
	if cfg.LogDir != "/tmp/rlm-logs" {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
}

func TestResolve_FlagWinsOverConfigFile(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("root_model: file-model\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := baseOptions()
	opts.ConfigFile = path
	opts.RootModel = "flag-model"

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootModel != "flag-model" {
		t.Errorf("RootModel = %q, want flag-model", cfg.RootModel)
	}
}

func TestResolve_MalformedConfigFile(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("root_model: [unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := baseOptions()
	opts.ConfigFile = path

	if _, err := Resolve(opts); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestApplyCapabilities_Downgrade(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	on := true
	opts := baseOptions()
	opts.Compaction = &on

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Compaction {
		t.Fatal("Compaction = false before probe")
	}

	cfg.ApplyCapabilities(rlm.Capabilities{Compaction: false})

	if cfg.Compaction {
		t.Error("Compaction = true after downgrade")
	}
	if !cfg.CompactionDowngraded {
		t.Error("CompactionDowngraded = false, want true")
	}
}

func TestApplyCapabilities_NoDowngradeWhenSupported(t *testing.T) {
	t.Setenv("RLM_API_KEY", "test-key")

	on := true
	opts := baseOptions()
	opts.Compaction = &on

	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.ApplyCapabilities(rlm.Capabilities{Compaction: true})

	if !cfg.Compaction || cfg.CompactionDowngraded {
		t.Errorf("Compaction = %v, CompactionDowngraded = %v", cfg.Compaction, cfg.CompactionDowngraded)
	}
}
