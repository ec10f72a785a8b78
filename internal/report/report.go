// Package report renders the single JSON result object a run emits on stdout
// and maps run statuses to process exit codes.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goodmachinaii/openclaw-rlm-skill/internal/config"
	"github.com/goodmachinaii/openclaw-rlm-skill/internal/rlm"
)

// Timings records wall-clock seconds for the run phases.
type Timings struct {
	LoadSeconds      float64 `json:"load_seconds"`
	ReasoningSeconds float64 `json:"reasoning_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}

// RunResult is the complete output contract. Exactly one of these is written
// to stdout per invocation, regardless of status.
type RunResult struct {
	Status       string            `json:"status"`
	Response     string            `json:"response"`
	Usage        *rlm.UsageSummary `json:"usage_summary,omitempty"`
	CostEstimate *CostEstimate     `json:"cost_estimate"`
	Timings      Timings           `json:"timings"`
	Config       config.Config     `json:"resolved_config"`

	ContextChars int    `json:"context_chars"`
	SessionsDir  string `json:"sessions_dir,omitempty"`

	Attempts       int    `json:"attempts"`
	ModelUsed      string `json:"model_used,omitempty"`
	SubModelUsed   string `json:"sub_model_used,omitempty"`
	FallbackUsed   bool   `json:"fallback_used,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	Error string `json:"error,omitempty"`
}

// Build assembles the result from the invocation outcome and run metadata.
func Build(cfg config.Config, out rlm.Outcome, timings Timings, contextChars int, sessionsDir string) RunResult {
	return RunResult{
		Status:         out.Status,
		Response:       out.Response,
		Usage:          out.Usage,
		CostEstimate:   Estimate(out.Usage),
		Timings:        timings,
		Config:         cfg,
		ContextChars:   contextChars,
		SessionsDir:    sessionsDir,
		Attempts:       out.Attempts,
		ModelUsed:      out.ModelUsed,
		SubModelUsed:   out.SubModelUsed,
		FallbackUsed:   out.FallbackUsed,
		FallbackReason: out.FallbackReason,
		Error:          out.ErrorMessage,
	}
}

// Write emits the result as indented JSON followed by a newline.
func Write(w io.Writer, r RunResult) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

// ExitCode maps a run status to the process exit code. Rate limiting and an
// empty corpus are expected operational outcomes, not failures.
func ExitCode(status string) int {
	switch status {
	case rlm.StatusOK, rlm.StatusSkipped, rlm.StatusRateLimited:
		return 0
	default:
		return 1
	}
}
