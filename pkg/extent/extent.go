// Package extent provides the canonical range key for the layer core: a
// half-open byte extent [Start, End) within one object, plus the merge
// policy that keeps extent layers overlap-free.
package extent

import (
	"fmt"

	"github.com/arjunsk/stratakv/pkg/layer"
)

// Key denotes the byte range [Start, End).
type Key struct {
	Start uint64
	End   uint64
}

// New returns the extent key [start, end).
func New(start, end uint64) Key {
	return Key{Start: start, End: end}
}

// At returns the zero-length search key positioned at offset, which under
// upper-bound ordering finds the extent covering offset.
func At(offset uint64) Key {
	return Key{Start: offset, End: offset}
}

func (k Key) String() string {
	return fmt.Sprintf("[%d..%d)", k.Start, k.End)
}

// CmpUpperBound orders extents by End, with Start as tiebreaker so the
// order stays strict over overlapping key sets.
func (k Key) CmpUpperBound(other Key) int {
	if c := cmpU64(k.End, other.End); c != 0 {
		return c
	}
	return cmpU64(k.Start, other.Start)
}

// CmpLowerBound orders extents by Start, with End as tiebreaker.
func (k Key) CmpLowerBound(other Key) int {
	if c := cmpU64(k.Start, other.Start); c != 0 {
		return c
	}
	return cmpU64(k.End, other.End)
}

func (k Key) EqualKey(other Key) bool {
	return k == other
}

// NextKey returns [End, End+1), the smallest key past this extent under
// lower-bound ordering.
func (k Key) NextKey() (Key, bool) {
	return Key{Start: k.End, End: k.End + 1}, true
}

// Overlaps reports whether the two half-open ranges intersect.
func (k Key) Overlaps(other Key) bool {
	return k.Start < other.End && other.Start < k.End
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MergeNewestWins is the extent merge policy that lets the incoming write
// win wherever it overlaps existing data: overlapped parts of the existing
// extent are discarded and any non-overlapped remainder is trimmed back in.
//
// Values carry no offset translation here; a caller whose values address
// device ranges should wrap this with its own trimming arithmetic.
func MergeNewestWins[V any](existing, incoming *layer.Item[Key, V]) layer.MergeResult[Key, V] {
	e, n := existing.Key, incoming.Key
	if e.End <= n.Start {
		return layer.KeepExisting[Key, V]()
	}
	if n.End <= e.Start {
		return layer.InsertBefore[Key, V]()
	}

	var reps []layer.Item[Key, V]
	if e.Start < n.Start {
		reps = append(reps, layer.Item[Key, V]{
			Key:      Key{Start: e.Start, End: n.Start},
			Value:    existing.Value,
			Sequence: existing.Sequence,
		})
	}
	if e.End > n.End {
		reps = append(reps, layer.Item[Key, V]{
			Key:      Key{Start: n.End, End: e.End},
			Value:    existing.Value,
			Sequence: existing.Sequence,
		})
	}
	return layer.Resolved(reps, incoming)
}
