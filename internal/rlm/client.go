package rlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL is the local CLIProxyAPI endpoint the RLM service
	// listens behind by default.
	DefaultBaseURL = "http://127.0.0.1:8317/v1"

	// The engine only honors max_depth=1 today; deeper recursion is not
	// functional in the installed service version.
	maxDepth = 1
)

// Client communicates with the hosted RLM reasoning service over HTTP.
// It performs exactly one service call per Completion; retry and fallback
// policy live in the Invoker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client for the given endpoint. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Per-attempt deadlines come from the caller's context.
		httpClient: &http.Client{Timeout: 0},
	}
}

// Capabilities reports the features this client version can pass through to
// the service. Compaction parameters are accepted by the current wire format.
func (c *Client) Capabilities() Capabilities {
	return Capabilities{Compaction: true}
}

// completionPayload is the service wire format for one reasoning run.
type completionPayload struct {
	Query         string  `json:"query"`
	Context       string  `json:"context,omitempty"`
	ContextChunks []Chunk `json:"context_chunks,omitempty"`

	RootModel string `json:"root_model"`
	SubModel  string `json:"sub_model,omitempty"`

	MaxIterations          int      `json:"max_iterations"`
	MaxDepth               int      `json:"max_depth"`
	Compaction             bool     `json:"compaction,omitempty"`
	CompactionThresholdPct *float64 `json:"compaction_threshold_pct,omitempty"`
	UseDefaultPrompt       bool     `json:"use_default_prompt"`
}

// RateLimitError is returned on HTTP 429 so callers can classify hard quota
// exhaustion distinctly from other failures.
type RateLimitError struct {
	Status int
	Body   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d): %s", e.Status, e.Body)
}

// ServerError is returned on 5xx-class responses, which are treated as
// transient by the default failure classifier.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Body)
}

// Completion runs one reasoning loop against the service. The sub model is
// forwarded only when it is set and differs from the root model, matching the
// service's cheaper-sub-LM contract; otherwise the root model serves every role.
func (c *Client) Completion(ctx context.Context, req Request) (*Result, error) {
	payload := completionPayload{
		Query:            req.Query,
		Context:          req.Context,
		ContextChunks:    req.ContextChunks,
		RootModel:        req.RootModel,
		MaxIterations:    req.MaxIterations,
		MaxDepth:         maxDepth,
		UseDefaultPrompt: req.UseDefaultPrompt,
	}
	if req.SubModel != "" && req.SubModel != req.RootModel {
		payload.SubModel = req.SubModel
	}
	if req.Compaction {
		payload.Compaction = true
		threshold := req.CompactionThreshold
		payload.CompactionThresholdPct = &threshold
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rlm/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Status: resp.StatusCode, Body: readBodySnippet(resp.Body)}
	case resp.StatusCode >= 500:
		return nil, &ServerError{Status: resp.StatusCode, Body: readBodySnippet(resp.Body)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readBodySnippet(resp.Body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

func readBodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(b))
}

var _ Engine = (*Client)(nil)
