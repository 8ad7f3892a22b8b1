package review

import (
	"fmt"

	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/lines"
	"github.com/kestrelworks/retract/internal/mark"
)

// PageSize is the number of candidates shown per review page.
const PageSize = 8

// Decision is the answer to "delete all shown/remaining candidates?".
type Decision int

const (
	// All accepts every currently marked candidate, reviewed or not.
	All Decision = iota
	// Next approves the page just shown and moves to the next one.
	Next
	// Pick rejects the bulk answer: the prompter supplies a range
	// specification over candidate ordinals and only those stay marked.
	Pick
	// Stop ends review. Pages already shown stay marked; candidates on
	// pages never shown are unmarked. A partial commit, not an abort.
	Stop
)

// Candidate is one marked line presented for review. Ordinal is its
// 1-based position within the candidate list — the coordinate system the
// Pick range specification uses, distinct from file line numbers.
type Candidate struct {
	Ordinal int
	Line    int
	Text    string
}

// Prompter supplies answers during review. The interactive prompter
// renders pages on a terminal; tests and the non-interactive entry point
// script it.
type Prompter interface {
	// Review presents one page and returns the decision for it.
	// reviewed and total report progress through the candidate list.
	Review(page []Candidate, reviewed, total int) (Decision, error)
	// Pick returns a range specification over candidate ordinals
	// (1..total). An empty specification keeps nothing.
	Pick(total int) (string, error)
}

// Run pages the marked lines past the prompter and narrows the bitset to
// the approved set. A malformed Pick specification is an ErrInput and
// leaves no partial mutation: the caller aborts before committing.
func Run(bs *bitset.Bitset, st *lines.Store, p Prompter) error {
	var cands []Candidate
	for _, i := range bs.Indices() {
		cands = append(cands, Candidate{Ordinal: len(cands) + 1, Line: i, Text: st.Text(i)})
	}
	if len(cands) == 0 {
		return nil
	}

	shown := 0
	for shown < len(cands) {
		end := shown + PageSize
		if end > len(cands) {
			end = len(cands)
		}
		page := cands[shown:end]
		shown = end

		d, err := p.Review(page, shown, len(cands))
		if err != nil {
			return fmt.Errorf("review prompt: %w", err)
		}
		switch d {
		case Next:
			continue
		case All:
			return nil
		case Stop:
			// Unreviewed pages only; the page just shown stands.
			for _, c := range cands[shown:] {
				bs.Clear(c.Line)
			}
			return nil
		case Pick:
			spec, err := p.Pick(len(cands))
			if err != nil {
				return fmt.Errorf("pick prompt: %w", err)
			}
			spans, err := mark.ParseSpans(spec, len(cands))
			if err != nil {
				return err
			}
			keep := bitset.New(len(cands) + 1)
			for _, sp := range spans {
				for o := sp.Start; o <= sp.End; o++ {
					keep.Set(o)
				}
			}
			for _, c := range cands {
				if !keep.Test(c.Ordinal) {
					bs.Clear(c.Line)
				}
			}
			return nil
		default:
			return fmt.Errorf("review: unknown decision %d", d)
		}
	}
	return nil
}

// Answer is a pre-supplied review answer for non-interactive callers.
type Answer string

const (
	AnswerYes  Answer = "yes"
	AnswerNo   Answer = "no"
	AnswerQuit Answer = "quit"
)

// ParseAnswer validates a pre-supplied answer string.
func ParseAnswer(s string) (Answer, error) {
	switch s {
	case "yes", "y":
		return AnswerYes, nil
	case "no", "n":
		return AnswerNo, nil
	case "quit", "q":
		return AnswerQuit, nil
	}
	return "", fmt.Errorf("%w: answer %q (want yes, no or quit)", mark.ErrInput, s)
}

// Scripted returns a prompter that answers every page from a canned
// answer and never touches a terminal: yes accepts everything, no keeps
// nothing, quit stops before anything past the first page.
func Scripted(a Answer) Prompter {
	return scripted{a}
}

type scripted struct {
	answer Answer
}

func (s scripted) Review([]Candidate, int, int) (Decision, error) {
	switch s.answer {
	case AnswerYes:
		return All, nil
	case AnswerNo:
		return Pick, nil
	default:
		return Stop, nil
	}
}

func (s scripted) Pick(int) (string, error) { return "", nil }
