package commit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kestrelworks/retract/internal/artifact"
	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/ledger"
	"github.com/kestrelworks/retract/internal/lines"
	"github.com/kestrelworks/retract/internal/store"
)

// Result reports what a rewrite did. LedgerErr and RecordErr are
// degraded-success side information: the target file is already correct
// when either is set, so callers warn and exit nonzero instead of
// failing the deletion.
type Result struct {
	Deleted      int // non-blank lines removed and mirrored
	BlankDropped int // blank lines removed silently
	Kept         int
	RecordPath   string
	LedgerErr    error
	RecordErr    error
}

// Rewrite streams the target once, splitting lines into kept and
// deleted. Kept lines go to a replacement file; deleted non-blank lines
// are mirrored to a deleted-lines record (and echoed when echo is
// non-nil); deleted blank lines vanish from both. The replacement is
// staged next to the target and renamed into place, so the original is
// never touched until the new content is fully written. The ledger is
// committed and written afterward — always, even for a no-op — so the
// on-disk ledger matches the file whenever Rewrite returns.
func Rewrite(st *lines.Store, bs *bitset.Bitset, led *ledger.Ledger, s *store.Store, meta artifact.Meta, echo io.Writer) (*Result, error) {
	dir := filepath.Dir(st.Path())
	tmp, err := os.CreateTemp(dir, ".rewrite-*")
	if err != nil {
		return nil, fmt.Errorf("cannot stage replacement for %s: %w", st.Path(), err)
	}
	tmpName := tmp.Name()
	discard := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	res := &Result{}
	var deleted []string

	w := bufio.NewWriter(tmp)
	for i := 0; i < st.Count(); i++ {
		if !bs.Test(i) {
			w.Write(st.Line(i))
			w.WriteByte('\n')
			res.Kept++
			continue
		}
		if st.IsBlank(i) {
			res.BlankDropped++
			continue
		}
		deleted = append(deleted, st.Text(i))
		if echo != nil {
			fmt.Fprintf(echo, "%s: %s\n", meta.Target, st.Text(i))
		}
	}
	if err := w.Flush(); err != nil {
		discard()
		return nil, fmt.Errorf("cannot write replacement for %s: %w", st.Path(), err)
	}
	if err := tmp.Close(); err != nil {
		discard()
		return nil, fmt.Errorf("cannot write replacement for %s: %w", st.Path(), err)
	}
	if err := os.Rename(tmpName, st.Path()); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("cannot replace %s: %w", st.Path(), err)
	}

	res.Deleted = len(deleted)
	if len(deleted) > 0 {
		meta.Deleted = len(deleted)
		path, err := artifact.Write(s, meta, deleted)
		if err != nil {
			res.RecordErr = err
		} else {
			res.RecordPath = path
		}
	}

	led.Commit(bs)
	if err := led.Write(); err != nil {
		res.LedgerErr = err
	}
	return res, nil
}
