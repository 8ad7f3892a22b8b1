package scribe

import (
	"fmt"
	"os"
	"strings"

	"github.com/kestrelworks/retract/internal/ledger"
	"github.com/kestrelworks/retract/internal/lines"
	"github.com/kestrelworks/retract/internal/store"
)

// scribe is the append side of the tool: it owns "add lines to
// script/history" and is the sole writer of the carry file. The
// retraction side only ever reads the carry and clears its slot.

// Result reports one append batch.
type Result struct {
	Added   int
	Rebuilt bool // the target's ledger disagreed with it and was rebuilt
}

// Append adds newLines to the target file and folds them into its undo
// ledger as one new batch. The carry slot is claimed before the file is
// touched and released once the ledger is durably written, so a crash
// anywhere in between leaves a carry the next load can reconcile (or, at
// worst, a mismatch the ledger self-heals from). An empty newLines still
// records a zero batch — an edit ran and added nothing.
func Append(s *store.Store, t store.Target, newLines []string) (*Result, error) {
	path := s.TargetPath(t)

	carry, err := ledger.ReadCarry(s.CarryPath())
	if err != nil {
		return nil, err
	}
	setSlot(&carry, t, slot(carry, t)+len(newLines))
	if err := ledger.WriteCarry(s.CarryPath(), carry); err != nil {
		return nil, err
	}

	if err := appendLines(path, newLines); err != nil {
		return nil, err
	}

	st, err := lines.Load(path)
	if err != nil {
		return nil, err
	}
	led, err := ledger.Load(s.LedgerPath(t), st.Count(), slot(carry, t))
	if err != nil {
		return nil, err
	}
	res := &Result{Added: len(newLines), Rebuilt: led.Inconsistent()}
	if led.Inconsistent() {
		led.Rebuild()
	} else {
		led.Append(slot(carry, t))
	}
	if err := led.Write(); err != nil {
		return nil, err
	}

	setSlot(&carry, t, 0)
	if carry == (ledger.Carry{}) {
		err = ledger.ClearCarry(s.CarryPath())
	} else {
		err = ledger.WriteCarry(s.CarryPath(), carry)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func slot(c ledger.Carry, t store.Target) int {
	if t == store.History {
		return c.History
	}
	return c.Script
}

func setSlot(c *ledger.Carry, t store.Target, n int) {
	if t == store.History {
		c.History = n
	} else {
		c.Script = n
	}
}

// appendLines writes each line with a trailing newline, first mending a
// missing terminator on the existing content so lines never merge.
func appendLines(path string, newLines []string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("cannot append to %s: %w", path, err)
	}

	var b strings.Builder
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if info.Size() > 0 {
		tail := make([]byte, 1)
		if _, err := f.ReadAt(tail, info.Size()-1); err == nil && tail[0] != '\n' {
			b.WriteByte('\n')
		}
	}
	for _, l := range newLines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("cannot append to %s: %w", path, err)
	}
	return f.Close()
}
