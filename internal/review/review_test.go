package review

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/lines"
	"github.com/kestrelworks/retract/internal/mark"
	"github.com/kestrelworks/retract/internal/plan"
)

// fakePrompter replays a fixed sequence of decisions and records what it
// was shown.
type fakePrompter struct {
	decisions []Decision
	pickSpec  string
	pages     [][]Candidate
}

func (f *fakePrompter) Review(page []Candidate, reviewed, total int) (Decision, error) {
	cp := make([]Candidate, len(page))
	copy(cp, page)
	f.pages = append(f.pages, cp)
	if len(f.decisions) == 0 {
		return Next, nil
	}
	d := f.decisions[0]
	f.decisions = f.decisions[1:]
	return d, nil
}

func (f *fakePrompter) Pick(total int) (string, error) { return f.pickSpec, nil }

func setup(t *testing.T, n int, markedLines []int) (*bitset.Bitset, *lines.Store) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "f.txt")
	var content []byte
	for i := 0; i < n; i++ {
		content = append(content, []byte(fmt.Sprintf("line %d\n", i))...)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, err := lines.Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bs := bitset.New(st.Count())
	for _, i := range markedLines {
		bs.Set(i)
	}
	return bs, st
}

func eqInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAllKeepsEverything(t *testing.T) {
	bs, st := setup(t, 20, []int{1, 3, 5, 7, 9, 11, 13, 15, 17})
	fp := &fakePrompter{decisions: []Decision{All}}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bs.Count() != 9 {
		t.Errorf("marked = %d, want 9", bs.Count())
	}
	// All after the first page: the second page is never rendered.
	if len(fp.pages) != 1 {
		t.Errorf("pages shown = %d, want 1", len(fp.pages))
	}
}

func TestNextPagesThrough(t *testing.T) {
	bs, st := setup(t, 20, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	fp := &fakePrompter{decisions: []Decision{Next, Next}}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bs.Count() != 10 {
		t.Errorf("marked = %d, want 10", bs.Count())
	}
	if len(fp.pages) != 2 {
		t.Fatalf("pages shown = %d, want 2", len(fp.pages))
	}
	if len(fp.pages[0]) != PageSize || len(fp.pages[1]) != 2 {
		t.Errorf("page sizes = %d, %d", len(fp.pages[0]), len(fp.pages[1]))
	}
	// Ordinals are list positions, not line numbers.
	if fp.pages[1][0].Ordinal != 9 {
		t.Errorf("second page first ordinal = %d, want 9", fp.pages[1][0].Ordinal)
	}
}

// Stop discards only pages never shown. With 5 candidates and a page
// size of 8 everything fits on the first page, so a Stop right after it
// leaves all candidates marked.
func TestStopAfterFirstPageKeepsShownCandidates(t *testing.T) {
	bs, st := setup(t, 10, []int{0, 2, 4, 6, 8})
	fp := &fakePrompter{decisions: []Decision{Stop}}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := bs.Indices(); !eqInts(got, []int{0, 2, 4, 6, 8}) {
		t.Errorf("marked = %v, want all five", got)
	}
}

// The cap narrows the candidate list before paging starts, so review
// only ever sees the survivors: capping five marks to the last two and
// stopping on the single resulting page keeps exactly those two.
func TestCapThenStopKeepsCappedCandidates(t *testing.T) {
	bs, st := setup(t, 10, []int{0, 1, 3, 4, 5})
	plan.ApplyCap(bs, st, 2)
	fp := &fakePrompter{decisions: []Decision{Stop}}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := bs.Indices(); !eqInts(got, []int{4, 5}) {
		t.Errorf("marked = %v, want [4 5]", got)
	}
	if len(fp.pages) != 1 || len(fp.pages[0]) != 2 {
		t.Fatalf("pages = %d, want one page of two candidates", len(fp.pages))
	}
}

func TestStopDiscardsUnshownPages(t *testing.T) {
	all := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	bs, st := setup(t, 12, all)
	fp := &fakePrompter{decisions: []Decision{Stop}}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// First page (8 candidates) stands; the unshown third were cleared.
	if got := bs.Indices(); !eqInts(got, all[:8]) {
		t.Errorf("marked = %v, want %v", got, all[:8])
	}
}

func TestPickNarrowsByOrdinal(t *testing.T) {
	bs, st := setup(t, 20, []int{2, 5, 8, 11, 14})
	fp := &fakePrompter{decisions: []Decision{Pick}, pickSpec: "2-3,5"}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Ordinals 2, 3 and 5 are lines 5, 8 and 14.
	if got := bs.Indices(); !eqInts(got, []int{5, 8, 14}) {
		t.Errorf("marked = %v, want [5 8 14]", got)
	}
}

func TestPickEmptyKeepsNothing(t *testing.T) {
	bs, st := setup(t, 6, []int{1, 3})
	fp := &fakePrompter{decisions: []Decision{Pick}, pickSpec: ""}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bs.Count() != 0 {
		t.Errorf("marked = %v, want none", bs.Indices())
	}
}

func TestPickMalformedIsInputError(t *testing.T) {
	bs, st := setup(t, 6, []int{1, 3})
	fp := &fakePrompter{decisions: []Decision{Pick}, pickSpec: "nope"}
	err := Run(bs, st, fp)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mark.ErrInput) {
		t.Errorf("error %v is not ErrInput", err)
	}
}

func TestNoCandidatesNoPrompt(t *testing.T) {
	bs, st := setup(t, 6, nil)
	fp := &fakePrompter{}
	if err := Run(bs, st, fp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fp.pages) != 0 {
		t.Errorf("prompter invoked with no candidates")
	}
}

func TestScriptedAnswers(t *testing.T) {
	for _, tt := range []struct {
		answer Answer
		want   []int
	}{
		{AnswerYes, []int{1, 3, 5}},
		{AnswerNo, nil},
		{AnswerQuit, []int{1, 3, 5}}, // one page: quit keeps the shown page
	} {
		bs, st := setup(t, 8, []int{1, 3, 5})
		if err := Run(bs, st, Scripted(tt.answer)); err != nil {
			t.Fatalf("Run(%s): %v", tt.answer, err)
		}
		if got := bs.Indices(); !eqInts(got, tt.want) {
			t.Errorf("answer %s: marked = %v, want %v", tt.answer, got, tt.want)
		}
	}
}

func TestParseAnswer(t *testing.T) {
	if _, err := ParseAnswer("maybe"); !errors.Is(err, mark.ErrInput) {
		t.Errorf("ParseAnswer(maybe) err = %v, want ErrInput", err)
	}
	for in, want := range map[string]Answer{
		"yes": AnswerYes, "y": AnswerYes,
		"no": AnswerNo, "n": AnswerNo,
		"quit": AnswerQuit, "q": AnswerQuit,
	} {
		got, err := ParseAnswer(in)
		if err != nil || got != want {
			t.Errorf("ParseAnswer(%q) = %v, %v", in, got, err)
		}
	}
}
