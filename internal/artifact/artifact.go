package artifact

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelworks/retract/internal/store"
)

// Meta is the YAML frontmatter of a deleted-lines record: which target
// was edited, when, what selected the lines, and how many went.
type Meta struct {
	Target    string    `yaml:"target"`
	Timestamp time.Time `yaml:"timestamp"`
	Patterns  []string  `yaml:"patterns,omitempty"`
	Ranges    string    `yaml:"ranges,omitempty"`
	UndoDepth int       `yaml:"undo_depth,omitempty"`
	Deleted   int       `yaml:"deleted"`
}

// Record is one deletion's result artifact: the non-blank lines removed
// from a target, preserved as markdown with YAML frontmatter so past
// deletions can be reviewed without performing a new one.
type Record struct {
	Frontmatter Meta
	Lines       []string
	FilePath    string
}

// Filename returns the record's conventional name under deleted/.
func Filename(m Meta) string {
	return fmt.Sprintf("%s-%s.md", m.Target, m.Timestamp.UTC().Format("20060102T150405"))
}

// Write stores a record in the work directory's deleted/ dir and returns
// its path. Callers skip Write when no non-blank line was deleted; a
// record with no lines would have nothing to show.
func Write(s *store.Store, m Meta, deleted []string) (string, error) {
	if err := os.MkdirAll(s.DeletedDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create deleted dir: %w", err)
	}

	fm, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# Deleted from %s\n\n```\n", m.Target)
	for _, l := range deleted {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	buf.WriteString("```\n")

	path := filepath.Join(s.DeletedDir(), Filename(m))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write record: %w", err)
	}
	return path, nil
}

// Parse splits a record into frontmatter and the deleted lines.
// Frontmatter is delimited by --- lines at the start of the document;
// the lines live in the first fenced block of the body.
func Parse(raw []byte) (*Record, error) {
	content := string(raw)
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return nil, fmt.Errorf("record missing frontmatter")
	}

	rest := trimmed[3:]
	rest = strings.TrimLeft(rest, " \t")
	rest = strings.TrimPrefix(rest, "\r")
	rest = strings.TrimPrefix(rest, "\n")

	endIdx := strings.Index(rest, "\n---")
	if endIdx == -1 {
		return nil, fmt.Errorf("unterminated frontmatter: missing closing ---")
	}
	fmRaw := rest[:endIdx]
	body := strings.TrimLeft(rest[endIdx+4:], "\r\n")

	var meta Meta
	if err := yaml.Unmarshal([]byte(fmRaw), &meta); err != nil {
		return nil, fmt.Errorf("invalid frontmatter YAML: %w", err)
	}

	return &Record{Frontmatter: meta, Lines: fencedLines(body)}, nil
}

func fencedLines(body string) []string {
	open := strings.Index(body, "```")
	if open == -1 {
		return nil
	}
	rest := body[open+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	}
	closeIdx := strings.Index(rest, "```")
	if closeIdx == -1 {
		return nil
	}
	block := strings.TrimRight(rest[:closeIdx], "\n")
	if block == "" {
		return nil
	}
	return strings.Split(block, "\n")
}

// List loads the records for a target, newest first. An empty target
// lists records for every target. A missing deleted/ dir is simply no
// records, not an error.
func List(s *store.Store, target string) ([]Record, error) {
	entries, err := os.ReadDir(s.DeletedDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read deleted dir: %w", err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if target != "" && !strings.HasPrefix(e.Name(), target+"-") {
			continue
		}
		path := filepath.Join(s.DeletedDir(), e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		r, err := Parse(raw)
		if err != nil {
			continue
		}
		r.FilePath = path
		records = append(records, *r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Frontmatter.Timestamp.After(records[j].Frontmatter.Timestamp)
	})
	return records, nil
}

// Markdown renders the record for display.
func (r *Record) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — %s\n\n", r.Frontmatter.Target,
		r.Frontmatter.Timestamp.Local().Format("2006-01-02 15:04:05"))
	if len(r.Frontmatter.Patterns) > 0 {
		fmt.Fprintf(&b, "Patterns: `%s`\n\n", strings.Join(r.Frontmatter.Patterns, "`, `"))
	}
	if r.Frontmatter.Ranges != "" {
		fmt.Fprintf(&b, "Ranges: `%s`\n\n", r.Frontmatter.Ranges)
	}
	if r.Frontmatter.UndoDepth > 0 {
		fmt.Fprintf(&b, "Undo depth: %d\n\n", r.Frontmatter.UndoDepth)
	}
	b.WriteString("```\n")
	for _, l := range r.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("```\n")
	return b.String()
}
