package layer

import (
	"context"
	"io"
)

// Iterator walks one layer's items in ascending upper-bound order.
//
// A fresh iterator from Seek is already positioned (or exhausted); Advance
// is only needed to move past the current item. Advance on a persisted
// layer may issue I/O; storage faults surface from it unretried.
type Iterator[K Key[K], V any] interface {
	Advance(ctx context.Context) error

	// Get returns the item under the cursor, or ok=false once exhausted.
	// Repeated calls are idempotent. The ref is valid until the next
	// Advance.
	Get() (ItemRef[K, V], bool)
}

// Layer is the read capability over one sorted run of items, in-memory or
// persisted.
//
// Any number of readers may hold tokens and iterate concurrently; a
// reader's view of the run never changes during its traversal.
type Layer[K Key[K], V any] interface {
	// Handle returns the persisted object backing this layer, nil for
	// pure in-memory layers.
	Handle() BackingObject

	// Seek returns an iterator positioned at the first item whose key's
	// upper bound is >= the bound key, or exhausted if none.
	Seek(ctx context.Context, bound Bound[K]) (Iterator[K, V], error)

	// Lock returns a reader token while the layer is open and nil once
	// Close has run. It never blocks. The token must be released when
	// the reader is done.
	Lock() *ReaderToken

	// Close waits for every outstanding reader token, then finalizes the
	// layer. After it returns, Lock permanently returns nil. Call it
	// once.
	Close(ctx context.Context) error

	// Version reports the record-format version this layer was written
	// with. Older persisted layers keep reporting their own encoding.
	Version() Version
}

// MutableLayer extends Layer for the newest, in-memory run. Mutations are
// serialized against each other by the implementation and never corrupt
// concurrently running readers: a reader that started before a mutation
// completes against the pre-mutation view.
type MutableLayer[K MergeableKey[K], V any] interface {
	Layer[K, V]

	// AsLayer narrows the same object to its read-only interface so a
	// merge routine can treat the whole stack uniformly.
	AsLayer() Layer[K, V]

	// Insert adds item, failing with ErrExists if an equal key is
	// already present.
	Insert(ctx context.Context, item Item[K, V]) error

	// ReplaceOrInsert upserts item at its exact key.
	ReplaceOrInsert(ctx context.Context, item Item[K, V]) error

	// MergeInto searches from lowerBound (under OrdLowerBound) for
	// existing items the incoming item conflicts with and resolves each
	// conflict through merge, keeping the layer free of overlaps.
	MergeInto(ctx context.Context, item Item[K, V], lowerBound K, merge MergeFn[K, V]) error

	// Len is the current item count.
	Len() int
}

// Writer produces a new persisted layer. Items must be supplied in
// ascending upper-bound order; the writer does not sort.
type Writer[K Key[K], V any] interface {
	Write(item ItemRef[K, V]) error

	// Flush forces buffered output to the backing object, surfacing any
	// storage fault encountered since the previous flush.
	Flush(ctx context.Context) error
}

// BackingObject is the abstract persisted-object handle owned by the I/O
// layer beneath this core.
type BackingObject interface {
	io.ReaderAt
	Size() int64
	Name() string
}

// IntoLayerRefs flattens a slice of concrete layer implementations into the
// read-only Layer interface, preserving order (callers keep newest first),
// so a generic merge routine can walk a mixed stack without per-type
// branching.
func IntoLayerRefs[K Key[K], V any, L Layer[K, V]](layers []L) []Layer[K, V] {
	refs := make([]Layer[K, V], len(layers))
	for i, l := range layers {
		refs[i] = l
	}
	return refs
}
