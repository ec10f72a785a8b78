package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Turn is a single natural-language exchange in a session transcript.
type Turn struct {
	Role string
	Text string
}

// SessionRecord is one parsed OpenClaw session file. Tool calls, tool
// results, and other non-dialogue events are dropped during parsing; only
// user and assistant turns survive.
type SessionRecord struct {
	Path    string
	Name    string
	ModTime time.Time
	Turns   []Turn
	Parsed  bool
}

// rawLine mirrors one line of the OpenClaw JSONL session format:
// {"type":..., "timestamp":..., "message":{"role":..., "content":[...]}}
// where content is either a plain string or an array of typed blocks.
type rawLine struct {
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Session lines can carry large pasted content; allow long lines.
const maxLineBytes = 10 << 20

// ParseFile reads one JSONL session file and returns its dialogue turns in
// original order. A malformed line is skipped without aborting the file;
// Parsed is true only when at least one dialogue turn survived. An unreadable
// file yields a record with Parsed=false and no turns, a soft failure the
// caller degrades gracefully.
func ParseFile(path string) SessionRecord {
	rec := SessionRecord{
		Path: path,
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	if info, err := os.Stat(path); err == nil {
		rec.ModTime = info.ModTime()
	}

	f, err := os.Open(path)
	if err != nil {
		return rec
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var entry rawLine
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		role := entry.Message.Role
		if role != "user" && role != "assistant" {
			continue
		}
		text := flattenContent(entry.Message.Content)
		if text == "" {
			continue
		}
		rec.Turns = append(rec.Turns, Turn{Role: role, Text: text})
	}

	rec.Parsed = len(rec.Turns) > 0
	return rec
}

// flattenContent extracts readable text from a message content field, which
// is either a direct string or an ordered array of content blocks. Only
// blocks of type "text" contribute; parts are joined with single spaces.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return strings.TrimSpace(direct)
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type != "text" {
			continue
		}
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Render converts the session to readable "[role]: text" lines.
func (s SessionRecord) Render() string {
	var sb strings.Builder
	for i, t := range s.Turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("[" + t.Role + "]: " + t.Text)
	}
	return sb.String()
}
