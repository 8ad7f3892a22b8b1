package plan

import (
	"fmt"

	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/lines"
	"github.com/kestrelworks/retract/internal/mark"
)

// BlankPolicy decides what happens to blank lines, independently of and
// in addition to any predicate-driven marks.
type BlankPolicy int

const (
	// Preserve leaves blank lines alone.
	Preserve BlankPolicy = iota
	// Squeeze keeps the first blank line of each run and marks the rest.
	Squeeze
	// Truncate marks every blank line.
	Truncate
)

// ParseBlankPolicy maps a config/flag string to a policy.
func ParseBlankPolicy(s string) (BlankPolicy, error) {
	switch s {
	case "", "preserve":
		return Preserve, nil
	case "squeeze":
		return Squeeze, nil
	case "truncate":
		return Truncate, nil
	}
	return Preserve, fmt.Errorf("%w: blank policy %q (want preserve, squeeze or truncate)", mark.ErrInput, s)
}

func (p BlankPolicy) String() string {
	switch p {
	case Squeeze:
		return "squeeze"
	case Truncate:
		return "truncate"
	}
	return "preserve"
}

// MarkBlanks applies the policy over the whole file in one pass. Marks
// accumulate on top of whatever the predicates already selected.
func MarkBlanks(bs *bitset.Bitset, st *lines.Store, policy BlankPolicy) {
	if policy == Preserve {
		return
	}
	inRun := false
	for i := 0; i < st.Count(); i++ {
		if !st.IsBlank(i) {
			inRun = false
			continue
		}
		switch policy {
		case Truncate:
			bs.Set(i)
		case Squeeze:
			if inRun {
				bs.Set(i)
			}
			inRun = true
		}
	}
}

// ApplyCap enforces a maximum deletion count over the marked, non-blank
// lines. When they exceed max, the LAST max candidates in file order stay
// marked and the rest are unmarked: a ring of size max is overwritten
// circularly as candidates stream past, so the most recently added lines
// always win. Deliberately deterministic, not a uniform sample. Blank
// lines marked by the blank policy are not candidates and never counted.
func ApplyCap(bs *bitset.Bitset, st *lines.Store, max int) {
	if max <= 0 {
		return
	}

	ring := make([]int, max)
	seen := 0
	for i := 0; i < st.Count(); i++ {
		if bs.Test(i) && !st.IsBlank(i) {
			ring[seen%max] = i
			seen++
		}
	}
	if seen <= max {
		return
	}

	keep := bitset.New(bs.Len())
	for _, i := range ring {
		keep.Set(i)
	}
	for i := 0; i < st.Count(); i++ {
		if bs.Test(i) && !st.IsBlank(i) && !keep.Test(i) {
			bs.Clear(i)
		}
	}
}
