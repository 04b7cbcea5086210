package layer

// MergeDecision says how a MergeFn resolved one (existing, incoming) pair.
type MergeDecision int

const (
	// MergeKeepExisting: no conflict, the existing item stays untouched
	// and the walk advances to the next candidate.
	MergeKeepExisting MergeDecision = iota

	// MergeInsertBefore: the incoming item sorts wholly before the
	// existing one; it is spliced in and the merge is complete.
	MergeInsertBefore

	// MergeResolved: the existing item is erased and Replacements take
	// its place; Remaining (if any) continues the walk as the new
	// incoming item.
	MergeResolved
)

// MergeResult carries the decision plus its operands.
//
// Replacements are spliced into the layer at their own key positions. They
// must not overlap each other or Remaining; a replacement sorting after the
// walk position may be revisited as an existing item on a later step, which
// is harmless exactly because it no longer conflicts.
type MergeResult[K MergeableKey[K], V any] struct {
	Decision     MergeDecision
	Replacements []Item[K, V]
	Remaining    *Item[K, V]
}

// MergeFn is the caller-supplied conflict policy consumed by
// MutableLayer.MergeInto. It is consulted once per existing item the walk
// encounters, in ascending lower-bound order, and must be pure: the layer
// owes it no particular call count beyond what resolution requires.
type MergeFn[K MergeableKey[K], V any] func(existing, incoming *Item[K, V]) MergeResult[K, V]

// KeepExisting is sugar for the no-conflict decision.
func KeepExisting[K MergeableKey[K], V any]() MergeResult[K, V] {
	return MergeResult[K, V]{Decision: MergeKeepExisting}
}

// InsertBefore is sugar for the sorts-wholly-before decision.
func InsertBefore[K MergeableKey[K], V any]() MergeResult[K, V] {
	return MergeResult[K, V]{Decision: MergeInsertBefore}
}

// Resolved is sugar for a conflict resolution.
func Resolved[K MergeableKey[K], V any](replacements []Item[K, V], remaining *Item[K, V]) MergeResult[K, V] {
	return MergeResult[K, V]{
		Decision:     MergeResolved,
		Replacements: replacements,
		Remaining:    remaining,
	}
}
