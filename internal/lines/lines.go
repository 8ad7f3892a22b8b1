package lines

import (
	"bytes"
	"fmt"
	"os"
)

// Store holds one target file loaded into memory as a sequence of lines.
// Lines are indexed from 0 in file order and never mutated after load;
// deletion is expressed elsewhere by marking indices, not by editing here.
type Store struct {
	path  string
	lines [][]byte
}

// Load reads the file at path and splits it into lines, preserving empty
// lines. A file with no trailing newline keeps its final partial line. A
// missing file loads as an empty store, so a fresh target behaves like a
// zero-line file rather than an error.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{path: path}, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	split := bytes.Split(data, []byte{'\n'})
	// A terminating newline produces one empty trailing element that is
	// not a real line.
	if len(split) > 0 && len(split[len(split)-1]) == 0 {
		split = split[:len(split)-1]
	}

	return &Store{path: path, lines: split}, nil
}

// Path returns the path the store was loaded from.
func (s *Store) Path() string { return s.path }

// Count returns the number of lines.
func (s *Store) Count() int { return len(s.lines) }

// Line returns the raw content of line i (no trailing newline).
// Indexing outside [0, Count) panics, as with a slice.
func (s *Store) Line(i int) []byte { return s.lines[i] }

// Text returns line i as a string.
func (s *Store) Text(i int) string { return string(s.lines[i]) }

// IsBlank reports whether line i is empty or whitespace-only.
// A \r left over from a CRLF file counts as whitespace.
func (s *Store) IsBlank(i int) bool {
	return len(bytes.TrimSpace(s.lines[i])) == 0
}
