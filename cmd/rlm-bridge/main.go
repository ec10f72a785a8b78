package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/goodmachinaii/openclaw-rlm-skill/internal/config"
	"github.com/goodmachinaii/openclaw-rlm-skill/internal/corpus"
	"github.com/goodmachinaii/openclaw-rlm-skill/internal/report"
	"github.com/goodmachinaii/openclaw-rlm-skill/internal/rlm"
)

var version = "dev"

var (
	noColor  bool
	exitCode int
)

func main() {
	// A local .env is a convenience for development; absence is not an error.
	_ = godotenv.Load()

	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rlm-bridge --query <question>",
		Short:   "Analyze OpenClaw conversation history with an RLM reasoning engine",
		Version: version,
		Long: `Load recent OpenClaw sessions and workspace notes, hand them to an RLM
reasoning engine as bounded context, and print one JSON result on stdout.

Examples:
  rlm-bridge --query "What did we discuss about the deployment?"
  rlm-bridge --query "Summarize this week" --profile-model speed --pi-profile pi4
  rlm-bridge --query "Find open threads" --max-sessions 10 --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runBridge,
	}

	f := cmd.Flags()
	f.String("query", "", "question to answer against the conversation history (required)")
	f.String("profile-model", "", "model profile: cost, balanced, or speed")
	f.String("pi-profile", "", "device profile: off, pi4, or pi8")
	f.String("root-model", "", "model for the root reasoning loop")
	f.String("sub-model", "", "model for sub-LM calls")
	f.String("fallback-model", "", "model tried once if the primary fails")
	f.Int("max-sessions", 0, "most recent sessions to load")
	f.Int("max-context-chars", 0, "character budget for the assembled context")
	f.Int("max-iterations", 0, "reasoning loop iteration cap")
	f.String("context-format", "", "context format: auto, string, or chunks")
	f.Bool("compaction", false, "enable context compaction")
	f.Bool("no-compaction", false, "disable context compaction")
	f.Float64("compaction-threshold", 0, "compaction trigger as a fraction of the context window")
	f.Float64("request-timeout", 0, "per-attempt timeout in seconds")
	f.Int("max-retries", 0, "total primary-model attempts")
	f.Float64("retry-backoff-seconds", 0, "base backoff between retries in seconds")
	f.String("log-dir", "", "directory for per-invocation trace logs")
	f.String("agent-id", "", "only load sessions for this agent")
	f.String("sessions-dir", "", "explicit sessions directory, skipping discovery")
	f.String("workspace", "", "workspace directory with MEMORY.md and daily notes")
	f.String("base-url", "", "engine base URL")
	f.BoolP("verbose", "v", false, "debug logging on stderr")
	f.BoolVar(&noColor, "no-color", false, "disable colored status output")

	cobra.CheckErr(cmd.MarkFlagRequired("query"))
	cmd.MarkFlagsMutuallyExclusive("compaction", "no-compaction")

	return cmd
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(optionsFromFlags(cmd))
	if err != nil {
		return err
	}

	setupLogging(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := rlm.NewClient(cfg.BaseURL, cfg.APIKey)
	cfg.ApplyCapabilities(client.Capabilities())
	if cfg.CompactionDowngraded {
		printWarning("Engine does not support compaction, continuing without it")
	}

	loader := &corpus.Loader{
		Workspace:       cfg.Workspace,
		SessionsDir:     cfg.SessionsDir,
		AgentID:         cfg.AgentID,
		MaxSessions:     cfg.MaxSessions,
		MaxContextChars: cfg.MaxContextChars,
		Format:          cfg.ContextFormat,
	}

	runStart := time.Now()
	printStep("Loading conversation history")
	corp, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	loadSecs := time.Since(runStart).Seconds()
	printStatus("Context", "%d chars, %d sessions, %d documents",
		corp.Chars, len(corp.Sessions), len(corp.Documents))

	var out rlm.Outcome
	var reasoningSecs float64
	if !corp.Sufficient() {
		printWarning("No conversation history available to analyze")
		out = rlm.Outcome{
			Status:   rlm.StatusSkipped,
			Response: "No conversation history available to analyze.",
		}
	} else {
		inv := rlm.NewInvoker(client)
		if cfg.LogDir != "" {
			trace, err := rlm.OpenTraceLog(cfg.LogDir)
			if err != nil {
				slog.Warn("trace log unavailable", "dir", cfg.LogDir, "error", err)
			} else {
				defer trace.Close()
				inv.Trace = trace
			}
		}

		printStep("Reasoning with %s", cfg.RootModel)
		reasoningStart := time.Now()
		out = inv.Run(ctx, buildPlan(cfg, corp))
		reasoningSecs = time.Since(reasoningStart).Seconds()
	}

	timings := report.Timings{
		LoadSeconds:      loadSecs,
		ReasoningSeconds: reasoningSecs,
		TotalSeconds:     time.Since(runStart).Seconds(),
	}
	result := report.Build(cfg, out, timings, corp.Chars, corp.SessionsDir)
	if err := report.Write(os.Stdout, result); err != nil {
		return err
	}

	switch out.Status {
	case rlm.StatusOK:
		printSuccess("Done in %.1fs, %d attempt(s)", timings.TotalSeconds, out.Attempts)
	case rlm.StatusRateLimited:
		printWarning("Rate limited after %d attempt(s)", out.Attempts)
	case rlm.StatusError:
		printError("Failed after %d attempt(s): %s", out.Attempts, out.ErrorMessage)
	}

	exitCode = report.ExitCode(out.Status)
	return nil
}

// optionsFromFlags maps parsed flags onto resolution options. Numeric and
// boolean flags only count when the user actually set them, so zero values
// never mask profile or config-file settings.
func optionsFromFlags(cmd *cobra.Command) config.Options {
	f := cmd.Flags()

	str := func(name string) string {
		v, _ := f.GetString(name)
		return v
	}
	intp := func(name string) *int {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetInt(name)
		return &v
	}
	floatp := func(name string) *float64 {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetFloat64(name)
		return &v
	}

	opts := config.Options{
		Query:               str("query"),
		ModelProfile:        str("profile-model"),
		DeviceProfile:       str("pi-profile"),
		RootModel:           str("root-model"),
		SubModel:            str("sub-model"),
		FallbackModel:       str("fallback-model"),
		MaxSessions:         intp("max-sessions"),
		MaxContextChars:     intp("max-context-chars"),
		MaxIterations:       intp("max-iterations"),
		ContextFormat:       str("context-format"),
		CompactionThreshold: floatp("compaction-threshold"),
		RequestTimeoutSecs:  floatp("request-timeout"),
		MaxRetries:          intp("max-retries"),
		RetryBackoffSecs:    floatp("retry-backoff-seconds"),
		LogDir:              str("log-dir"),
		AgentID:             str("agent-id"),
		SessionsDir:         str("sessions-dir"),
		Workspace:           str("workspace"),
		BaseURL:             str("base-url"),
	}
	opts.Verbose, _ = f.GetBool("verbose")

	if f.Changed("compaction") {
		on := true
		opts.Compaction = &on
	}
	if f.Changed("no-compaction") {
		off := false
		opts.Compaction = &off
	}

	return opts
}

// buildPlan turns the resolved configuration and loaded corpus into one
// invocation plan for the engine.
func buildPlan(cfg config.Config, corp *corpus.Context) rlm.Plan {
	req := rlm.Request{
		Query:               cfg.Query,
		RootModel:           cfg.RootModel,
		SubModel:            cfg.SubModel,
		MaxIterations:       cfg.MaxIterations,
		Compaction:          cfg.Compaction,
		CompactionThreshold: cfg.CompactionThreshold,
		UseDefaultPrompt:    cfg.UseDefaultPrompt,
	}
	if corp.Format == "chunks" {
		req.ContextChunks = corp.Chunks
	} else {
		req.Context = corp.Text
	}

	return rlm.Plan{
		Request:       req,
		FallbackModel: cfg.FallbackModel,
		MaxRetries:    cfg.MaxRetries,
		Timeout:       cfg.Timeout(),
		Backoff:       cfg.Backoff(),
	}
}

// setupLogging routes structured logs to stderr so stdout stays a single
// JSON object.
func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
