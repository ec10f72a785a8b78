// Package rlm wraps the hosted RLM reasoning service: an iterative LLM-driven
// loop that plans and executes against supplied context to answer a question.
// The loop itself is opaque to this bridge; this package owns the call-level
// resilience around it: per-attempt timeouts, retry with backoff, and
// primary-to-fallback model substitution.
package rlm

import "context"

// Capabilities is the feature set negotiated with the installed engine before
// any call is made. Features absent here are silently downgraded during
// configuration resolution rather than failing at invocation time.
type Capabilities struct {
	Compaction bool
}

// Request carries one reasoning query plus its bounded context. Exactly one
// of Context and ContextChunks is populated, depending on the context format.
type Request struct {
	Query         string
	Context       string
	ContextChunks []Chunk

	RootModel string
	SubModel  string

	MaxIterations       int
	Compaction          bool
	CompactionThreshold float64

	// UseDefaultPrompt selects the engine's built-in system prompt.
	UseDefaultPrompt bool
}

// Chunk is one labeled unit of context the engine can address individually.
type Chunk struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// ModelUsage is the per-model token telemetry reported by the engine.
// CachedInputTokens is nil when the engine version does not break out
// cache hits; cost accounting then prices all input at the cache-miss rate.
type ModelUsage struct {
	Calls             int    `json:"total_calls"`
	InputTokens       int64  `json:"total_input_tokens"`
	OutputTokens      int64  `json:"total_output_tokens"`
	CachedInputTokens *int64 `json:"cached_input_tokens,omitempty"`
}

// UsageSummary aggregates token telemetry across every model the engine
// touched during one completion, keyed by model identifier.
type UsageSummary struct {
	Models map[string]ModelUsage `json:"model_usage_summaries"`
}

// Result is a successful engine completion.
type Result struct {
	Response      string        `json:"response"`
	ExecutionTime float64       `json:"execution_time"`
	Usage         *UsageSummary `json:"usage_summary"`
}

// Engine abstracts the reasoning service. The shipped implementation is
// Client; tests substitute fakes to exercise retry, fallback, and capability
// downgrade paths without network access.
type Engine interface {
	// Completion runs one full reasoning loop and returns the answer with
	// usage telemetry. It blocks for the duration of the loop; callers bound
	// it with a context deadline.
	Completion(ctx context.Context, req Request) (*Result, error)

	// Capabilities reports which optional engine features this installation
	// accepts.
	Capabilities() Capabilities
}
