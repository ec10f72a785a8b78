// Package corpus assembles the bounded reasoning context for a run: recent
// conversation sessions plus workspace notes, concatenated under a character
// budget that is enforced on unit boundaries.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goodmachinaii/openclaw-rlm-skill/internal/rlm"
	"github.com/goodmachinaii/openclaw-rlm-skill/internal/transcript"
)

const (
	// parseWorkers bounds concurrent transcript parsing.
	parseWorkers = 8

	// minSessionChars drops near-empty transcripts that would only pad the
	// context with headers.
	minSessionChars = 50

	// minContextChars is the floor below which the assembled context is not
	// worth a reasoning call.
	minContextChars = 100

	// docTruncateChars caps a single workspace document; anything above
	// docSkipChars is skipped outright rather than truncated.
	docTruncateChars = 50_000
	docSkipChars     = 500_000

	// Daily note bounds: newest-first file count and aggregate characters.
	maxDailyNotes  = 30
	dailyNoteChars = 200_000

	// minNoteChars drops placeholder daily notes.
	minNoteChars = 20
)

// workspaceDocs are loaded in this order when present in the workspace root.
var workspaceDocs = []string{
	"MEMORY.md",
	"SOUL.md",
	"AGENTS.md",
	"USER.md",
	"IDENTITY.md",
	"TOOLS.md",
}

// Document is one workspace file included in the context.
type Document struct {
	Name      string
	Chars     int
	Truncated bool
}

// SessionInfo describes one session file included in the context. Format is
// "jsonl" for native transcripts and "md" for sanitized Markdown exports;
// Turns is zero for md sessions, which are included verbatim.
type SessionInfo struct {
	Name   string
	Path   string
	Format string
	Turns  int
	Chars  int
}

// Context is the assembled corpus handed to the reasoning engine. Exactly one
// of Text or Chunks is populated depending on Format.
type Context struct {
	Format      string
	Text        string
	Chunks      []rlm.Chunk
	Chars       int
	Sessions    []SessionInfo
	Documents   []Document
	SessionsDir string
}

// Sufficient reports whether enough material was gathered to justify a call.
func (c *Context) Sufficient() bool {
	return c.Chars >= minContextChars
}

// Loader gathers and bounds the corpus. Zero-value fields fall back to the
// user's home directory layout.
type Loader struct {
	Home            string
	Workspace       string
	SessionsDir     string
	AgentID         string
	MaxSessions     int
	MaxContextChars int
	Format          string

	Logger *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Loader) home() string {
	if l.Home != "" {
		return l.Home
	}
	home, _ := os.UserHomeDir()
	return home
}

// unit is one contiguous block of context with its header already applied.
type unit struct {
	label string
	text  string
}

// Load discovers the sessions directory, parses the most recent transcripts
// in parallel, reads workspace documents and daily notes, and assembles
// everything under the character budget. Workspace material is placed first
// so stable identity notes survive budget pressure ahead of old transcripts.
func (l *Loader) Load(ctx context.Context) (*Context, error) {
	dir := l.findSessionsDir()

	var units []unit
	result := &Context{Format: l.Format, SessionsDir: dir}

	docUnits, docs := l.loadWorkspace()
	units = append(units, docUnits...)
	result.Documents = docs

	if dir != "" {
		sessionUnits, infos, err := l.loadSessions(ctx, dir)
		if err != nil {
			return nil, err
		}
		units = append(units, sessionUnits...)
		result.Sessions = infos
	} else {
		l.logger().Warn("no sessions directory found", "home", l.home())
	}

	l.assemble(result, units)
	return result, nil
}

// findSessionsDir returns the first candidate directory that contains at
// least one transcript. An explicit override always wins, even when empty.
func (l *Loader) findSessionsDir() string {
	if l.SessionsDir != "" {
		return l.SessionsDir
	}

	home := l.home()
	var candidates []string

	agentsRoot := filepath.Join(home, ".openclaw", "agents")
	if entries, err := os.ReadDir(agentsRoot); err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if l.AgentID != "" && e.Name() != l.AgentID {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			candidates = append(candidates, filepath.Join(agentsRoot, name, "sessions"))
		}
	}

	candidates = append(candidates,
		filepath.Join(home, ".openclaw", "sessions"),
		filepath.Join(home, ".openclaw", "workspace", "sessions"),
	)

	for _, dir := range candidates {
		if hasTranscripts(dir) {
			return dir
		}
	}
	return ""
}

func hasTranscripts(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			return true
		}
	}
	return false
}

// sessionFile is one discovered transcript candidate.
type sessionFile struct {
	path    string
	name    string
	format  string
	modTime time.Time
}

// loadSessions selects the most recently modified session files and loads
// them concurrently. Order within the result is newest first.
func (l *Loader) loadSessions(ctx context.Context, dir string) ([]unit, []SessionInfo, error) {
	files := l.discoverSessionFiles(dir)
	if len(files) == 0 {
		return nil, nil, nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	if l.MaxSessions > 0 && len(files) > l.MaxSessions {
		files = files[:l.MaxSessions]
	}

	type loaded struct {
		text  string
		turns int
		ok    bool
	}
	results := make([]loaded, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseWorkers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if f.format == "md" {
				data, err := os.ReadFile(f.path)
				if err != nil {
					return nil
				}
				results[i] = loaded{text: strings.TrimSpace(string(data)), ok: true}
				return nil
			}
			rec := transcript.ParseFile(f.path)
			results[i] = loaded{text: rec.Render(), turns: len(rec.Turns), ok: rec.Parsed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var units []unit
	var infos []SessionInfo
	for i, f := range files {
		res := results[i]
		if !res.ok {
			l.logger().Warn("skipping unreadable or empty transcript", "path", f.path)
			continue
		}
		if len(res.text) < minSessionChars {
			continue
		}
		header := fmt.Sprintf("=== SESSION:%s DATE:%s FMT:%s ===",
			f.name, f.modTime.Format("2006-01-02 15:04"), f.format)
		units = append(units, unit{
			label: "session:" + f.name,
			text:  header + "\n" + res.text,
		})
		infos = append(infos, SessionInfo{
			Name:   f.name,
			Path:   f.path,
			Format: f.format,
			Turns:  res.turns,
			Chars:  len(res.text),
		})
	}
	return units, infos, nil
}

// discoverSessionFiles collects JSONL transcripts from dir and Markdown
// session exports from the sibling qmd/sessions tree; when neither yields
// anything it falls back to legacy transcript.md files under dir. A missing
// or unreadable directory is the soft no-sessions condition, never an error.
func (l *Loader) discoverSessionFiles(dir string) []sessionFile {
	var files []sessionFile

	entries, err := os.ReadDir(dir)
	if err != nil {
		l.logger().Warn("sessions directory unreadable", "dir", dir, "error", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, sessionFile{
			path:    filepath.Join(dir, e.Name()),
			name:    strings.TrimSuffix(e.Name(), ".jsonl"),
			format:  "jsonl",
			modTime: info.ModTime(),
		})
	}

	files = append(files, markdownSessions(filepath.Join(filepath.Dir(dir), "qmd", "sessions"), "*.md")...)

	if len(files) == 0 {
		files = append(files, markdownSessions(dir, "transcript.md")...)
	}
	return files
}

// markdownSessions walks root for files matching pattern and returns them as
// md-format session candidates.
func markdownSessions(root, pattern string) []sessionFile {
	var files []sessionFile
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, sessionFile{
			path:    path,
			name:    strings.TrimSuffix(d.Name(), ".md"),
			format:  "md",
			modTime: info.ModTime(),
		})
		return nil
	})
	return files
}

// loadWorkspace reads the named workspace documents and then the daily notes
// under memory/. Oversized documents are truncated or skipped per the
// per-document caps.
func (l *Loader) loadWorkspace() ([]unit, []Document) {
	if l.Workspace == "" {
		return nil, nil
	}

	var units []unit
	var docs []Document

	for _, name := range workspaceDocs {
		path := filepath.Join(l.Workspace, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if len(data) > docSkipChars {
			l.logger().Warn("skipping oversized workspace document",
				"name", name, "chars", len(data))
			continue
		}
		truncated := false
		text := string(data)
		if len(text) > docTruncateChars {
			text = text[:docTruncateChars]
			truncated = true
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		units = append(units, unit{
			label: "doc:" + name,
			text:  fmt.Sprintf("=== %s ===\n%s", name, text),
		})
		docs = append(docs, Document{Name: name, Chars: len(text), Truncated: truncated})
	}

	noteUnits, noteDocs := l.loadDailyNotes()
	units = append(units, noteUnits...)
	docs = append(docs, noteDocs...)
	return units, docs
}

// loadDailyNotes reads memory/*.md newest first. Note filenames are dated, so
// lexical descending order is reverse chronological.
func (l *Loader) loadDailyNotes() ([]unit, []Document) {
	dir := filepath.Join(l.Workspace, "memory")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > maxDailyNotes {
		names = names[:maxDailyNotes]
	}

	var units []unit
	var docs []Document
	total := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(data))
		if len(text) < minNoteChars {
			continue
		}
		if total+len(text) > dailyNoteChars {
			break
		}
		total += len(text)
		units = append(units, unit{
			label: "daily:" + name,
			text:  fmt.Sprintf("=== DAILY:%s ===\n%s", name, text),
		})
		docs = append(docs, Document{Name: "memory/" + name, Chars: len(text)})
	}
	return units, docs
}

// assemble applies the character budget on unit boundaries and renders the
// final text or chunk list. A unit that would overflow the budget ends
// assembly; units are ordered most recent first, so only older material is
// dropped.
func (l *Loader) assemble(result *Context, units []unit) {
	var kept []unit
	total := 0
	for _, u := range units {
		cost := len(u.text)
		if len(kept) > 0 {
			cost += 2
		}
		if l.MaxContextChars > 0 && total+cost > l.MaxContextChars {
			l.logger().Info("context budget reached",
				"kept", len(kept), "dropped", len(units)-len(kept))
			break
		}
		total += cost
		kept = append(kept, u)
	}

	format := result.Format
	if format == "" || format == "auto" {
		if len(kept) > 1 {
			format = "chunks"
		} else {
			format = "string"
		}
	}
	result.Format = format

	if format == "chunks" {
		chars := 0
		result.Chunks = make([]rlm.Chunk, 0, len(kept))
		for _, u := range kept {
			result.Chunks = append(result.Chunks, rlm.Chunk{Label: u.label, Text: u.text})
			chars += len(u.text)
		}
		result.Chars = chars
		return
	}

	parts := make([]string, len(kept))
	for i, u := range kept {
		parts[i] = u.text
	}
	result.Text = strings.Join(parts, "\n\n")
	result.Chars = len(result.Text)
}
