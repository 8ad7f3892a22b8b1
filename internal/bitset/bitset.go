package bitset

import "math/bits"

// Bitset is a fixed-capacity set of line indices backed by uint64 words.
// Bit i set means "line i is marked for deletion". Capacity is fixed at
// construction to the line count of the file being worked on; indices at
// or beyond the capacity are never stored.
type Bitset struct {
	n     int
	words []uint64
}

// New returns a bitset with capacity for indices [0, n).
func New(n int) *Bitset {
	if n < 0 {
		n = 0
	}
	return &Bitset{n: n, words: make([]uint64, (n+63)/64)}
}

// Len returns the capacity (the line count this set was sized for).
func (b *Bitset) Len() int { return b.n }

// Set marks index i. Out-of-range indices are ignored.
func (b *Bitset) Set(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.words[i>>6] |= 1 << (uint(i) & 63)
}

// Clear unmarks index i. Out-of-range indices are ignored.
func (b *Bitset) Clear(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.words[i>>6] &^= 1 << (uint(i) & 63)
}

// Test reports whether index i is marked.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.words[i>>6]&(1<<(uint(i)&63)) != 0
}

// Count returns the number of marked indices.
func (b *Bitset) Count() int {
	total := 0
	for _, w := range b.words {
		total += bits.OnesCount64(w)
	}
	return total
}

// Clone returns an independent copy.
func (b *Bitset) Clone() *Bitset {
	c := &Bitset{n: b.n, words: make([]uint64, len(b.words))}
	copy(c.words, b.words)
	return c
}

// CopyFrom overwrites this set's contents with other's.
// Both sets must have the same capacity.
func (b *Bitset) CopyFrom(other *Bitset) {
	if b.n != other.n {
		panic("bitset: CopyFrom capacity mismatch")
	}
	copy(b.words, other.words)
}

// And intersects this set with other in place.
// Both sets must have the same capacity.
func (b *Bitset) And(other *Bitset) {
	if b.n != other.n {
		panic("bitset: And capacity mismatch")
	}
	for i := range b.words {
		b.words[i] &= other.words[i]
	}
}

// Or unions other into this set in place.
// Both sets must have the same capacity.
func (b *Bitset) Or(other *Bitset) {
	if b.n != other.n {
		panic("bitset: Or capacity mismatch")
	}
	for i := range b.words {
		b.words[i] |= other.words[i]
	}
}

// Indices returns the marked indices in ascending order.
func (b *Bitset) Indices() []int {
	out := make([]int, 0, b.Count())
	for i := 0; i < b.n; i++ {
		if b.Test(i) {
			out = append(out, i)
		}
	}
	return out
}
