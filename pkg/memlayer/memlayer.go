// Package memlayer implements the mutable, in-memory layer: the newest run
// of the stack, absorbing writes while older runs stay immutable.
//
// The backing structure is a B-tree mutated copy-on-write: every mutation
// batch works on a cheap Copy of the committed tree and an atomic pointer
// swap publishes it, so an in-flight reader keeps traversing the tree it
// started on and never sees a half-applied splice.
package memlayer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/RussellLuo/timingwheel"
	"github.com/tidwall/btree"

	"github.com/arjunsk/stratakv/pkg/layer"
	"github.com/arjunsk/stratakv/pkg/log"
)

// closeWarnAfter is how long a Close drain may run before the watchdog
// logs it.
const closeWarnAfter = 5 * time.Second

// mutAvgWindow sizes the mutation latency moving average.
const mutAvgWindow = 64

type Layer[K layer.MergeableKey[K], V any] struct {
	state   atomic.Pointer[btree.BTreeG[layer.Item[K, V]]]
	readers *layer.TokenRegistry

	// writeMu serializes mutation batches. Readers never take it.
	writeMu sync.Mutex

	closing atomic.Bool
	timer   *timingwheel.TimingWheel
	mutAvg  *movingaverage.MovingAverage
}

var _ layer.MutableLayer[dummyKey, int] = (*Layer[dummyKey, int])(nil)

// New returns an empty mutable layer.
func New[K layer.MergeableKey[K], V any]() *Layer[K, V] {
	l := &Layer[K, V]{
		readers: layer.NewTokenRegistry(),
		timer:   timingwheel.NewTimingWheel(100*time.Millisecond, 64),
		mutAvg:  movingaverage.New(mutAvgWindow),
	}
	l.state.Store(btree.NewBTreeG(func(a, b layer.Item[K, V]) bool {
		return a.Key.CmpUpperBound(b.Key) < 0
	}))
	go l.timer.Start()
	return l
}

// AsLayer narrows the layer to its read-only interface.
func (l *Layer[K, V]) AsLayer() layer.Layer[K, V] {
	return l
}

// Handle returns nil: nothing persisted backs this layer.
func (l *Layer[K, V]) Handle() layer.BackingObject {
	return nil
}

// Version of an in-memory layer is whatever it would be persisted as.
func (l *Layer[K, V]) Version() layer.Version {
	return layer.LatestVersion
}

// Lock returns a reader token, or nil once Close has run. Never blocks.
func (l *Layer[K, V]) Lock() *layer.ReaderToken {
	return l.readers.Acquire()
}

// Len is the committed item count.
func (l *Layer[K, V]) Len() int {
	return l.state.Load().Len()
}

// Seek positions an iterator at the first item whose upper bound is >= the
// bound key. The iterator walks a private copy of the committed tree, so a
// caller may abandon it at any position without holding anything against
// writers or Close.
func (l *Layer[K, V]) Seek(ctx context.Context, bound layer.Bound[K]) (layer.Iterator[K, V], error) {
	if err := bound.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.readers.Closed() {
		return nil, layer.ErrClosed
	}

	it := l.state.Load().Copy().Iter()
	var ok bool
	if bound.FromStart() {
		ok = it.First()
	} else {
		ok = it.Seek(layer.Item[K, V]{Key: bound.Key()})
	}
	iter := &iterator[K, V]{it: it, valid: ok}
	if ok {
		iter.item = it.Item()
	} else {
		it.Release()
	}
	return iter, nil
}

// Close drains every outstanding reader token, then discards the tree.
// Lock returns nil from the moment Close begins. Repeated calls are no-ops;
// only the first run owns the watchdog timer.
func (l *Layer[K, V]) Close(ctx context.Context) error {
	if !l.closing.CompareAndSwap(false, true) {
		return l.readers.CloseAndDrain(ctx)
	}
	watchdog := l.timer.AfterFunc(closeWarnAfter, func() {
		log.Warnf("memlayer: close drain exceeded %s, readers still hold tokens", closeWarnAfter)
	})
	err := l.readers.CloseAndDrain(ctx)
	watchdog.Stop()
	l.timer.Stop()
	if err != nil {
		return err
	}
	log.Debugf("memlayer: closed with %d items, avg mutation %s",
		l.state.Load().Len(), time.Duration(l.mutAvg.Avg()))
	l.state.Load().Clear()
	return nil
}

// Insert adds item, failing with ErrExists when an equal key is present.
func (l *Layer[K, V]) Insert(ctx context.Context, item layer.Item[K, V]) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.readers.Closed() {
		return layer.ErrClosed
	}
	start := time.Now()
	working := l.state.Load().Copy()
	if existing, ok := working.Get(item); ok && existing.Key.EqualKey(item.Key) {
		return fmt.Errorf("insert %v: %w", item.Key, layer.ErrExists)
	}
	working.Set(item)
	return l.commitAndWait(ctx, working, start)
}

// ReplaceOrInsert upserts item at its exact key.
func (l *Layer[K, V]) ReplaceOrInsert(ctx context.Context, item layer.Item[K, V]) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.readers.Closed() {
		return layer.ErrClosed
	}
	start := time.Now()
	working := l.state.Load().Copy()
	working.Set(item)
	return l.commitAndWait(ctx, working, start)
}

// MergeInto splices item into the layer, resolving overlaps with existing
// items through merge. The walk starts at the first existing item whose
// range can still reach lowerBound and consults merge for each candidate in
// ascending lower-bound order.
func (l *Layer[K, V]) MergeInto(ctx context.Context, item layer.Item[K, V], lowerBound K, merge layer.MergeFn[K, V]) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.readers.Closed() {
		return layer.ErrClosed
	}
	start := time.Now()
	working := l.state.Load().Copy()
	cur := newCursor(working, lowerBound)
	cur.mergeInto(item, merge)
	return l.commitAndWait(ctx, working, start)
}

// commitAndWait publishes the working tree and waits out every reader that
// started before the publish. Caller holds writeMu.
func (l *Layer[K, V]) commitAndWait(ctx context.Context, working *btree.BTreeG[layer.Item[K, V]], start time.Time) error {
	l.state.Store(working)
	if err := l.readers.Barrier(ctx); err != nil {
		return err
	}
	l.mutAvg.Add(float64(time.Since(start).Nanoseconds()))
	return nil
}

// iterator reads one committed snapshot of the tree. The snapshot is never
// mutated after publish, so no coordination with writers is needed.
type iterator[K layer.MergeableKey[K], V any] struct {
	it    btree.IterG[layer.Item[K, V]]
	item  layer.Item[K, V]
	valid bool
}

func (i *iterator[K, V]) Advance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !i.valid {
		return nil
	}
	if i.it.Next() {
		i.item = i.it.Item()
	} else {
		i.valid = false
		i.it.Release()
	}
	return nil
}

func (i *iterator[K, V]) Get() (layer.ItemRef[K, V], bool) {
	if !i.valid {
		return layer.ItemRef[K, V]{}, false
	}
	return i.item.Ref(), true
}

// Release frees the snapshot early, for callers that replace a positioned
// iterator instead of exhausting it. Get reports not-found afterwards.
func (i *iterator[K, V]) Release() {
	if i.valid {
		i.valid = false
		i.it.Release()
	}
}

// dummyKey only anchors the interface-satisfaction assertion above.
type dummyKey struct{}

func (dummyKey) CmpUpperBound(dummyKey) int   { return 0 }
func (dummyKey) CmpLowerBound(dummyKey) int   { return 0 }
func (dummyKey) EqualKey(dummyKey) bool       { return true }
func (dummyKey) NextKey() (dummyKey, bool)    { return dummyKey{}, false }
