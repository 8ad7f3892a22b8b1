package commit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kestrelworks/retract/internal/artifact"
	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/ledger"
	"github.com/kestrelworks/retract/internal/lines"
	"github.com/kestrelworks/retract/internal/mark"
	"github.com/kestrelworks/retract/internal/plan"
	"github.com/kestrelworks/retract/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".retract")
	if err := store.Init(dir, false); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	s, err := store.Load(dir)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	return s
}

func writeTarget(t *testing.T, s *store.Store, tgt store.Target, content string) (*lines.Store, *ledger.Ledger) {
	t.Helper()
	if err := os.WriteFile(s.TargetPath(tgt), []byte(content), 0644); err != nil {
		t.Fatalf("write target: %v", err)
	}
	st, err := lines.Load(s.TargetPath(tgt))
	if err != nil {
		t.Fatalf("lines.Load: %v", err)
	}
	led, err := ledger.Load(s.LedgerPath(tgt), st.Count(), 0)
	if err != nil {
		t.Fatalf("ledger.Load: %v", err)
	}
	led.Rebuild() // fresh target, single batch covering every line
	return st, led
}

func meta(tgt store.Target) artifact.Meta {
	return artifact.Meta{Target: tgt.String(), Timestamp: time.Now().UTC()}
}

// The §8 scenario: five lines, two ^# comments, a pair of consecutive
// blanks; squeeze blank policy. Two comments plus the second blank go,
// the rest keeps its order, and the ledger total drops by three.
func TestEndToEndCommentsAndSqueeze(t *testing.T) {
	s := setupStore(t)
	content := "# header\nmake all\n\n\n# trailing note\n"
	st, led := writeTarget(t, s, store.Script, content)

	bs := bitset.New(st.Count())
	if err := mark.Regex(bs, st, []string{"^#"}, false, mark.First); err != nil {
		t.Fatalf("Regex: %v", err)
	}
	plan.MarkBlanks(bs, st, plan.Squeeze)

	res, err := Rewrite(st, bs, led, s, meta(store.Script), nil)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.Deleted != 2 || res.BlankDropped != 1 {
		t.Errorf("Deleted=%d BlankDropped=%d, want 2 and 1", res.Deleted, res.BlankDropped)
	}

	got, err := os.ReadFile(s.TargetPath(store.Script))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "make all\n\n" {
		t.Errorf("rewritten file = %q, want %q", got, "make all\n\n")
	}

	if led.Total() != 2 {
		t.Errorf("ledger total = %d, want 2", led.Total())
	}

	// And the ledger on disk agrees with the file on disk.
	reloaded, err := ledger.Load(s.LedgerPath(store.Script), 2, 0)
	if err != nil {
		t.Fatalf("reload ledger: %v", err)
	}
	if reloaded.Inconsistent() {
		t.Error("ledger on disk inconsistent with rewritten file")
	}
}

func TestDeletedLinesMirroredToRecord(t *testing.T) {
	s := setupStore(t)
	st, led := writeTarget(t, s, store.History, "one\ntwo\nthree\n")

	bs := bitset.New(st.Count())
	bs.Set(1)

	var echo bytes.Buffer
	res, err := Rewrite(st, bs, led, s, meta(store.History), &echo)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.RecordPath == "" {
		t.Fatal("no record written")
	}
	records, err := artifact.List(s, "history")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || len(records[0].Lines) != 1 || records[0].Lines[0] != "two" {
		t.Errorf("records = %+v", records)
	}
	if !strings.Contains(echo.String(), "two") {
		t.Errorf("echo = %q", echo.String())
	}
}

func TestBlankOnlyDeletionWritesNoRecord(t *testing.T) {
	s := setupStore(t)
	st, led := writeTarget(t, s, store.Script, "a\n\n\nb\n")

	bs := bitset.New(st.Count())
	plan.MarkBlanks(bs, st, plan.Truncate)

	res, err := Rewrite(st, bs, led, s, meta(store.Script), nil)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if res.Deleted != 0 || res.BlankDropped != 2 {
		t.Errorf("Deleted=%d BlankDropped=%d, want 0 and 2", res.Deleted, res.BlankDropped)
	}
	if res.RecordPath != "" {
		t.Error("record written for blank-only deletion")
	}
	records, _ := artifact.List(s, "script")
	if len(records) != 0 {
		t.Errorf("records = %d, want 0", len(records))
	}
}

func TestNoopRewriteStillWritesLedger(t *testing.T) {
	s := setupStore(t)
	st, led := writeTarget(t, s, store.Script, "a\nb\n")

	bs := bitset.New(st.Count())
	if _, err := Rewrite(st, bs, led, s, meta(store.Script), nil); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if _, err := os.Stat(s.LedgerPath(store.Script)); err != nil {
		t.Errorf("ledger not written on no-op run: %v", err)
	}
	got, _ := os.ReadFile(s.TargetPath(store.Script))
	if string(got) != "a\nb\n" {
		t.Errorf("no-op rewrite changed content: %q", got)
	}
}

func TestLedgerWriteFailureIsDegradedSuccess(t *testing.T) {
	s := setupStore(t)
	st, led := writeTarget(t, s, store.Script, "a\nb\nc\n")

	// Make the ledger path unwritable by turning it into a directory.
	if err := os.MkdirAll(s.LedgerPath(store.Script), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	bs := bitset.New(st.Count())
	bs.Set(0)
	res, err := Rewrite(st, bs, led, s, meta(store.Script), nil)
	if err != nil {
		t.Fatalf("Rewrite should succeed despite ledger failure: %v", err)
	}
	if res.LedgerErr == nil {
		t.Fatal("LedgerErr not set")
	}

	// The content rewrite itself happened.
	got, _ := os.ReadFile(s.TargetPath(store.Script))
	if string(got) != "b\nc\n" {
		t.Errorf("content = %q, want %q", got, "b\nc\n")
	}
}
