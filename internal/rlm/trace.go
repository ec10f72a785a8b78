package rlm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// TraceRecord captures one engine attempt for offline debugging. Records are
// appended as newline-delimited JSON, one file per invocation.
type TraceRecord struct {
	InvocationID string    `json:"invocation_id"`
	Model        string    `json:"model"`
	SubModel     string    `json:"sub_model,omitempty"`
	Attempt      int       `json:"attempt"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// TraceLog appends attempt records to a per-invocation NDJSON file. A nil
// *TraceLog is valid and discards records, so callers never branch on
// whether tracing is configured.
type TraceLog struct {
	invocationID string
	f            *os.File
	enc          *json.Encoder
}

// OpenTraceLog creates the log directory if needed and opens a fresh trace
// file named after the invocation.
func OpenTraceLog(dir string) (*TraceLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	id := uuid.New().String()
	name := fmt.Sprintf("rlm-%s-%s.jsonl", time.Now().UTC().Format("20060102-150405"), id[:8])
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	return &TraceLog{invocationID: id, f: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one record. Trace failures are reported and swallowed; the
// run outcome never depends on trace I/O.
func (t *TraceLog) Append(rec TraceRecord) {
	if t == nil {
		return
	}
	rec.InvocationID = t.invocationID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := t.enc.Encode(rec); err != nil {
		slog.Warn("trace append failed", "error", err)
	}
}

func (t *TraceLog) Close() error {
	if t == nil {
		return nil
	}
	return t.f.Close()
}
