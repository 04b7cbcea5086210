// Package merger walks a stack of layers, newest first, and yields one
// globally ordered stream.
//
// Items surface in ascending upper-bound order. When items from different
// layers occupy the same sort position, only the newest layer's item is
// emitted: layer recency decides, never the sequence number. Where a key
// type provides NextKey, advancing a source becomes an index re-seek past
// everything the emitted item already covers; without it, sources advance
// one item at a time. Both produce the identical stream, the probes just
// differ.
//
// Callers keep a reader token (Layer.Lock) on every layer for the lifetime
// of the stream.
package merger

import (
	"container/heap"
	"context"

	"github.com/arjunsk/stratakv/pkg/layer"
)

// source is one layer's cursor inside the heap.
type source[K layer.MergeableKey[K], V any] struct {
	idx   int // position in the stack, 0 = newest
	lyr   layer.Layer[K, V]
	it    layer.Iterator[K, V]
	item  layer.Item[K, V]
	valid bool
}

func (s *source[K, V]) load() {
	ref, ok := s.it.Get()
	if !ok {
		s.valid = false
		return
	}
	s.item = ref.Cloned()
	s.valid = true
}

// Stream is the merged iterator. It satisfies layer.Iterator.
type Stream[K layer.MergeableKey[K], V any] struct {
	h     sourceHeap[K, V]
	cur   *source[K, V]
	valid bool
}

var _ layer.Iterator[dummyKey, int] = (*Stream[dummyKey, int])(nil)

// Seek opens a merged stream over layers (newest first) positioned at
// bound. Every layer is probed once up front; faults surface immediately.
func Seek[K layer.MergeableKey[K], V any](ctx context.Context, layers []layer.Layer[K, V], bound layer.Bound[K]) (*Stream[K, V], error) {
	if err := bound.Validate(); err != nil {
		return nil, err
	}
	s := &Stream[K, V]{}
	for i, lyr := range layers {
		it, err := lyr.Seek(ctx, bound)
		if err != nil {
			return nil, err
		}
		src := &source[K, V]{idx: i, lyr: lyr, it: it}
		src.load()
		if src.valid {
			s.h = append(s.h, src)
		}
	}
	heap.Init(&s.h)
	return s, s.settle(ctx)
}

// settle pops the next winner and advances every older source parked at the
// same sort position.
func (s *Stream[K, V]) settle(ctx context.Context) error {
	if s.h.Len() == 0 {
		s.valid = false
		s.cur = nil
		return nil
	}
	s.cur = heap.Pop(&s.h).(*source[K, V])
	s.valid = true
	for s.h.Len() > 0 && s.h[0].item.Key.EqualKey(s.cur.item.Key) {
		dup := heap.Pop(&s.h).(*source[K, V])
		if err := s.advanceSource(ctx, dup, s.cur.item.Key); err != nil {
			return err
		}
		if dup.valid {
			heap.Push(&s.h, dup)
		}
	}
	return nil
}

// advanceSource moves src past emitted. With NextKey available this is a
// re-seek at the successor key, skipping the probe walk; a layer at rest
// holds nothing between an item and its key's successor, so the stream is
// unchanged either way.
func (s *Stream[K, V]) advanceSource(ctx context.Context, src *source[K, V], emitted K) error {
	if next, ok := emitted.NextKey(); ok {
		it, err := src.lyr.Seek(ctx, layer.Included(next))
		if err != nil {
			return err
		}
		releaseIter(src.it)
		src.it = it
		src.load()
		return nil
	}
	if err := src.it.Advance(ctx); err != nil {
		return err
	}
	src.load()
	return nil
}

func (s *Stream[K, V]) Advance(ctx context.Context) error {
	if !s.valid {
		return nil
	}
	emitted := s.cur.item.Key
	if err := s.advanceSource(ctx, s.cur, emitted); err != nil {
		return err
	}
	if s.cur.valid {
		heap.Push(&s.h, s.cur)
	}
	return s.settle(ctx)
}

// releaseIter drops a superseded cursor, freeing its snapshot where the
// layer's iterator offers an early release.
func releaseIter[K layer.MergeableKey[K], V any](it layer.Iterator[K, V]) {
	if r, ok := it.(interface{ Release() }); ok {
		r.Release()
	}
}

func (s *Stream[K, V]) Get() (layer.ItemRef[K, V], bool) {
	if !s.valid {
		return layer.ItemRef[K, V]{}, false
	}
	return s.cur.item.Ref(), true
}

// dummyKey anchors the interface assertion.
type dummyKey struct{}

func (dummyKey) CmpUpperBound(dummyKey) int { return 0 }
func (dummyKey) CmpLowerBound(dummyKey) int { return 0 }
func (dummyKey) EqualKey(dummyKey) bool     { return true }
func (dummyKey) NextKey() (dummyKey, bool)  { return dummyKey{}, false }
