package layer

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// OrdUpperBound orders keys by the end of the range they denote. Every seek
// uses this ordering: searching for K positions the iterator at the first
// item whose upper bound is >= K, which is how a caller finds the extent
// covering a given offset with a zero-length search key.
type OrdUpperBound[K any] interface {
	CmpUpperBound(other K) int
}

// OrdLowerBound orders keys by the start of the range. Only the merge path
// uses it, to find the first existing item an incoming item could overlap.
type OrdLowerBound[K any] interface {
	CmpLowerBound(other K) int
}

// NextKey yields the smallest key guaranteed to sort after the receiver
// under OrdLowerBound, or ok=false when the key type does not provide the
// optimization. Returning false is always correct, only slower: the merger
// must re-probe every layer on every advance instead of skipping some.
type NextKey[K any] interface {
	NextKey() (next K, ok bool)
}

// Key is the minimum capability a layer key carries. Both orderings must be
// strict total orders over any key set a layer will store.
type Key[K any] interface {
	OrdUpperBound[K]
}

// RangeKey marks keys that denote intervals rather than points. Unreconciled
// range keys may overlap; a layer at rest never holds two overlapping keys.
type RangeKey[K any] interface {
	Key[K]
	Overlaps(other K) bool
}

// MergeableKey is the full capability set overlap-aware merging needs.
// Plain immutable point-keyed layers get by with Key alone.
type MergeableKey[K any] interface {
	Key[K]
	OrdLowerBound[K]
	NextKey[K]
	EqualKey(other K) bool
}

// Item is one key/value record. Sequence is the commit marker (conceptually
// a journal offset) assigned when the item became durable; two items may
// share one. It is bookkeeping only and never affects sort position.
type Item[K Key[K], V any] struct {
	Key      K
	Value    V
	Sequence uint64
}

// ItemRef is a borrowed view of an item inside an iterator, used where keys
// and values live in separate columns and an owned Item would be a copy.
// The ref is valid only until the owning iterator advances or is released.
type ItemRef[K Key[K], V any] struct {
	Key      *K
	Value    *V
	Sequence uint64
}

// Cloned materializes an owned copy of the referenced item.
func (r ItemRef[K, V]) Cloned() Item[K, V] {
	return Item[K, V]{Key: *r.Key, Value: *r.Value, Sequence: r.Sequence}
}

// Ref borrows the item.
func (i *Item[K, V]) Ref() ItemRef[K, V] {
	return ItemRef[K, V]{Key: &i.Key, Value: &i.Value, Sequence: i.Sequence}
}

type boundKind int

const (
	boundStart boundKind = iota
	boundIncluded
	boundExcluded
)

// Bound tells Seek where iteration begins. No layer supports Excluded
// bounds; Seek rejects them with ErrInvalidBound and the caller must
// translate to an equivalent Included bound itself.
type Bound[K any] struct {
	kind boundKind
	key  K
}

// Start begins iteration at the first item of the layer.
func Start[K any]() Bound[K] {
	return Bound[K]{kind: boundStart}
}

// Included begins iteration at the first item whose upper bound is >= key.
func Included[K any](key K) Bound[K] {
	return Bound[K]{kind: boundIncluded, key: key}
}

// Excluded is retained so the unsupported case is expressible at call sites;
// every Seek fails it.
func Excluded[K any](key K) Bound[K] {
	return Bound[K]{kind: boundExcluded, key: key}
}

// FromStart reports whether the bound is Start.
func (b Bound[K]) FromStart() bool {
	return b.kind == boundStart
}

// Key returns the bound key. Meaningless for Start bounds.
func (b Bound[K]) Key() K {
	return b.key
}

// Validate returns ErrInvalidBound for Excluded bounds.
func (b Bound[K]) Validate() error {
	if b.kind == boundExcluded {
		return ErrInvalidBound
	}
	return nil
}

// Version identifies the persisted record encoding a layer was written
// with. Layers persisted under an older encoding keep reporting it.
type Version struct {
	Major uint32
	Minor uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Cmp returns -1, 0 or 1 ordering versions by (major, minor).
func (v Version) Cmp(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// LatestVersion is the record encoding current code writes. Persisted
// layers written earlier keep reporting their own version.
var LatestVersion = Version{Major: 1, Minor: 0}

// PointKey adapts any naturally ordered scalar to the key contracts. Both
// orderings degenerate to the natural order, so point-keyed layers satisfy
// the agreement property between upper-bound, lower-bound and plain order.
type PointKey[T constraints.Ordered] struct {
	V T
}

func Point[T constraints.Ordered](v T) PointKey[T] {
	return PointKey[T]{V: v}
}

func (p PointKey[T]) CmpUpperBound(other PointKey[T]) int {
	return cmpOrdered(p.V, other.V)
}

func (p PointKey[T]) CmpLowerBound(other PointKey[T]) int {
	return cmpOrdered(p.V, other.V)
}

func (p PointKey[T]) EqualKey(other PointKey[T]) bool {
	return p.V == other.V
}

// NextKey returns ok=false: a point key has no cheap successor in general
// (strings have none at all).
func (p PointKey[T]) NextKey() (PointKey[T], bool) {
	return PointKey[T]{}, false
}

// Overlaps for a point key is plain equality.
func (p PointKey[T]) Overlaps(other PointKey[T]) bool {
	return p.V == other.V
}

func cmpOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
