package mark

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/lines"
)

// ErrInput tags usage errors: malformed range tokens, patterns that do
// not compile, and the like. Callers map it to a usage exit code. No
// mutation of the selection is ever visible after an ErrInput.
var ErrInput = errors.New("invalid input")

// Mode controls how a predicate combines with marks already present.
type Mode int

const (
	// First sets every line the predicate selects (OR over the file).
	First Mode = iota
	// Intersect keeps a line marked only if this predicate also selects
	// it. Implemented by clearing bits whose line fails the predicate,
	// never by setting, so lines rejected by an earlier predicate stay
	// rejected.
	Intersect
)

// Regex marks lines matching any of the given patterns. All patterns
// within one call OR together; the combine mode only governs how the
// result meets marks from earlier, independent predicates. Every pattern
// is compiled before the bitset is touched, so a compile failure leaves
// the selection untouched.
func Regex(bs *bitset.Bitset, st *lines.Store, patterns []string, ignoreCase bool, mode Mode) error {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		src := p
		if ignoreCase {
			src = "(?i)" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrInput, p, err)
		}
		compiled = append(compiled, re)
	}

	matches := func(i int) bool {
		line := st.Line(i)
		for _, re := range compiled {
			if re.Match(line) {
				return true
			}
		}
		return false
	}

	switch mode {
	case First:
		for i := 0; i < st.Count(); i++ {
			if matches(i) {
				bs.Set(i)
			}
		}
	case Intersect:
		for i := 0; i < st.Count(); i++ {
			if bs.Test(i) && !matches(i) {
				bs.Clear(i)
			}
		}
	}
	return nil
}

// Span is one inclusive 1-based interval produced by the range grammar.
type Span struct {
	Start, End int
}

// ParseSpans parses a comma-separated range specification against a file
// whose last line is `last` (1-based). Grammar per token:
//
//	A     single line
//	A-B   inclusive range; A > B wraps: [A,last] and [1,B]
//	A-    from A to end of file
//	-B    from line 1 to B
//	-     the whole file
//
// "0" and empty tokens are no-ops. Bounds past the end of file clamp;
// a span lying entirely past the end is dropped. Anything else is an
// ErrInput and the whole specification is rejected.
func ParseSpans(spec string, last int) ([]Span, error) {
	var spans []Span
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" || tok == "0" {
			continue
		}

		dash := strings.Index(tok, "-")
		if dash < 0 {
			n, err := parseBound(tok)
			if err != nil {
				return nil, err
			}
			if n == 0 || n > last {
				continue
			}
			spans = append(spans, Span{n, n})
			continue
		}

		lo, err := parseOptBound(tok[:dash])
		if err != nil {
			return nil, fmt.Errorf("%w: range token %q", ErrInput, tok)
		}
		hi, err := parseOptBound(tok[dash+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: range token %q", ErrInput, tok)
		}

		// Missing bounds reach the corresponding edge of the file.
		if lo == 0 {
			lo = 1
		}
		if hi == 0 {
			hi = last
		}
		if hi > last {
			hi = last
		}
		if lo > last {
			// Entirely past the end, unless it wraps below.
			if hi < lo && hi >= 1 {
				spans = append(spans, Span{1, hi})
			}
			continue
		}

		if lo > hi {
			// Wrap-around: two spans, not an error.
			spans = append(spans, Span{lo, last}, Span{1, hi})
			continue
		}
		spans = append(spans, Span{lo, hi})
	}
	return spans, nil
}

func parseBound(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: range token %q", ErrInput, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative line number %q", ErrInput, s)
	}
	return n, nil
}

// parseOptBound parses one side of A-B, where either side may be empty.
// Empty yields 0, which the caller resolves to the file edge.
func parseOptBound(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return parseBound(s)
}

// Ranges marks the union of the intervals described by spec. The whole
// specification is parsed before the bitset is touched, so a malformed
// token rejects the request with no partial mutation.
func Ranges(bs *bitset.Bitset, st *lines.Store, spec string, mode Mode) error {
	spans, err := ParseSpans(spec, st.Count())
	if err != nil {
		return err
	}
	// A spec whose tokens were all no-ops ("0", empty, past EOF) selects
	// nothing and must change nothing, in either mode.
	if len(spans) == 0 {
		return nil
	}

	switch mode {
	case First:
		for _, sp := range spans {
			for i := sp.Start - 1; i < sp.End; i++ {
				bs.Set(i)
			}
		}
	case Intersect:
		union := bitset.New(bs.Len())
		for _, sp := range spans {
			for i := sp.Start - 1; i < sp.End; i++ {
				union.Set(i)
			}
		}
		bs.And(union)
	}
	return nil
}
