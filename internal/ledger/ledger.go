package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/mark"
)

// ErrLedger tags ledger I/O failures. A content rewrite that succeeds
// before a ledger write fails is still a success; callers downgrade
// ErrLedger to a warning plus a nonzero exit, never to a rollback.
var ErrLedger = errors.New("ledger error")

// Ledger is the persistent undo history for one target file: an ordered
// sequence of batches (oldest first), each recording how many lines one
// past edit added. Zero is a valid batch count — an edit ran and added
// nothing. While consistent, sum(batches) == total == the target's line
// count minus any pending (not yet folded) lines.
type Ledger struct {
	path         string
	total        int
	batches      []int
	pendingDelta int
	inconsistent bool
}

// Load reads the ledger at path and checks it against the live state of
// its target: lineCount is the target's current line count and
// pendingDelta the carry-file count of lines appended since the ledger
// was last reconciled. If the stored batches do not sum to
// lineCount−pendingDelta the ledger is flagged inconsistent and rebuilt
// in memory as one batch covering every reconciled line; undo granularity
// is lost but nothing else is. Only real I/O failures return an error.
func Load(path string, lineCount, pendingDelta int) (*Ledger, error) {
	expected := lineCount - pendingDelta
	if expected < 0 {
		// The carry claims more pending lines than the file holds;
		// the carry is junk, not the ledger.
		expected = lineCount
		pendingDelta = 0
	}

	l := &Ledger{path: path, total: expected, pendingDelta: pendingDelta}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A fresh target with no history is clean only if there is
			// nothing to account for.
			if expected != 0 {
				l.inconsistent = true
				l.batches = []int{expected}
			}
			return l, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrLedger, path, err)
	}

	batches, ok := decode(data)
	if !ok || sum(batches) != expected {
		l.inconsistent = true
		l.batches = []int{expected}
		return l, nil
	}
	l.batches = batches
	return l, nil
}

// Path returns the ledger's file path.
func (l *Ledger) Path() string { return l.path }

// Total returns the number of lines the folded batches account for.
func (l *Ledger) Total() int { return l.total }

// PendingDelta returns the not-yet-folded line count supplied at load.
func (l *Ledger) PendingDelta() int { return l.pendingDelta }

// Inconsistent reports whether the stored history disagreed with the
// target file at load time and was rebuilt as a single batch.
func (l *Ledger) Inconsistent() bool { return l.inconsistent }

// Batches returns a copy of the batch counts, oldest first.
func (l *Ledger) Batches() []int {
	out := make([]int, len(l.batches))
	copy(out, l.batches)
	return out
}

// MarkUndo marks the lines added by the most recent depth batches, i.e.
// the suffix [total−acc, total) where acc accumulates batch counts
// newest to oldest. depth beyond the batch count clamps to all of them.
// With mode Intersect, lines outside that suffix are cleared instead.
func (l *Ledger) MarkUndo(depth int, bs *bitset.Bitset, mode mark.Mode) {
	cur := newUndoCursor(l.batches)
	acc := cur.advance(depth)
	lo := l.total - acc

	switch mode {
	case mark.First:
		for i := lo; i < l.total; i++ {
			bs.Set(i)
		}
	case mark.Intersect:
		for i := 0; i < lo; i++ {
			bs.Clear(i)
		}
		for i := l.total; i < bs.Len(); i++ {
			bs.Clear(i)
		}
	}
}

// undoCursor walks the batch sequence newest to oldest.
type undoCursor struct {
	batches []int
	idx     int
}

func newUndoCursor(batches []int) *undoCursor {
	return &undoCursor{batches: batches, idx: len(batches)}
}

// advance consumes up to n batches and returns their summed line count.
func (c *undoCursor) advance(n int) int {
	acc := 0
	for ; n > 0 && c.idx > 0; n-- {
		c.idx--
		acc += c.batches[c.idx]
	}
	return acc
}

// Commit folds a finalized deletion set into the history. Indices are
// the frozen load-time line numbers: an index below total decrements the
// batch that added it (and total); an index at or past total belongs to
// the in-flight edit and decrements pendingDelta instead. Counts never
// go negative. Emptied batches are compacted away, preserving order.
func (l *Ledger) Commit(bs *bitset.Bitset) {
	// Batch boundaries from the counts as they were when the bitset's
	// indices were assigned.
	ends := make([]int, len(l.batches))
	acc := 0
	for i, c := range l.batches {
		acc += c
		ends[i] = acc
	}

	origTotal := l.total
	cur := 0
	for _, i := range bs.Indices() {
		if i >= origTotal {
			if l.pendingDelta > 0 {
				l.pendingDelta--
			}
			continue
		}
		for cur < len(ends) && i >= ends[cur] {
			cur++
		}
		if cur < len(ends) && l.batches[cur] > 0 {
			l.batches[cur]--
			l.total--
		}
	}

	compacted := l.batches[:0]
	for _, c := range l.batches {
		if c > 0 {
			compacted = append(compacted, c)
		}
	}
	l.batches = compacted
}

// Append folds n freshly appended lines into the history as one new
// batch. n == 0 is recorded like any other edit. Pending lines covered
// by the new batch stop being pending.
func (l *Ledger) Append(n int) {
	l.batches = append(l.batches, n)
	l.total += n
	if l.pendingDelta >= n {
		l.pendingDelta -= n
	} else {
		l.pendingDelta = 0
	}
}

// Rebuild discards all history and replaces it with a single batch
// covering every current line, folding any pending delta in. This is
// both the explicit reset operation and the self-heal path.
func (l *Ledger) Rebuild() {
	l.total += l.pendingDelta
	l.pendingDelta = 0
	l.batches = []int{l.total}
	l.inconsistent = false
}

// Write persists the ledger: an 8-byte little-endian length followed by
// the run-length-coded batch bytes, written to a temp file and renamed
// into place. Write is called at the end of every run, deletions or not,
// so other processes always read a ledger matching the file on disk.
func (l *Ledger) Write() error {
	payload := encode(l.batches)
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(payload)))
	copy(buf[8:], payload)

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrLedger, l.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrLedger, l.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrLedger, l.path, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", ErrLedger, l.path, err)
	}
	return nil
}

// encode run-length-codes each batch count: floor(c/255) continuation
// bytes of 0xFF followed by one remainder byte below 0xFF. A huge batch
// costs ceil(c/255) bytes and batch boundaries stay recoverable.
func encode(batches []int) []byte {
	var out []byte
	for _, c := range batches {
		for ; c >= 255; c -= 255 {
			out = append(out, 0xFF)
		}
		out = append(out, byte(c))
	}
	return out
}

// decode reverses encode. It returns ok=false on any structural damage:
// a short header, a length disagreeing with the payload, or a dangling
// run of continuation bytes with no closing remainder.
func decode(data []byte) ([]int, bool) {
	if len(data) < 8 {
		return nil, false
	}
	n := binary.LittleEndian.Uint64(data[:8])
	payload := data[8:]
	if uint64(len(payload)) != n {
		return nil, false
	}

	batches := []int{}
	acc := 0
	open := false
	for _, b := range payload {
		acc += int(b)
		if b < 0xFF {
			batches = append(batches, acc)
			acc = 0
			open = false
		} else {
			open = true
		}
	}
	if open {
		return nil, false
	}
	return batches, true
}

func sum(xs []int) int {
	t := 0
	for _, x := range xs {
		t += x
	}
	return t
}
