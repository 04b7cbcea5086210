package perslayer

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/alphadose/zenq/v2"

	"github.com/arjunsk/stratakv/pkg/layer"
)

const writeQueueDepth = 1 << 12

// WriterOption tunes a Writer.
type WriterOption[K any] func(*writerConfig[K])

type writerConfig[K any] struct {
	hashKey      func(K) []byte
	expectedKeys uint
	fpRate       float64
}

// WithBloom makes the writer build a bloom filter over hashKey(key) for
// every written item. Only point-keyed layers benefit; extent layers
// usually skip it.
func WithBloom[K any](hashKey func(K) []byte, expectedKeys uint, fpRate float64) WriterOption[K] {
	return func(c *writerConfig[K]) {
		c.hashKey = hashKey
		c.expectedKeys = expectedKeys
		c.fpRate = fpRate
	}
}

// Writer produces one persisted layer onto dst. Write decouples the caller
// from encoding through a lock-free queue drained by a single goroutine;
// Flush drains the queue, appends index, bloom and trailer, and surfaces
// the first fault encountered anywhere along the way. A flushed writer is
// finished and must not be written again.
type Writer[K layer.Key[K], V any] struct {
	codec layer.Codec[K, V]

	queue   *zenq.ZenQ[*layer.Item[K, V]]
	pending atomic.Int64
	sealed  atomic.Bool
	done    chan struct{}

	buf     *bufio.Writer
	offset  int64
	offsets []int64
	bloom   *bloomFilter
	hashKey func(K) []byte

	// lastKey is touched only by the drain goroutine; mu guards err,
	// which Flush reads from the caller's goroutine.
	lastKey *K
	mu      sync.Mutex
	err     error
}

var _ layer.Writer[layer.PointKey[int], []byte] = (*Writer[layer.PointKey[int], []byte])(nil)

// NewWriter writes the header eagerly so faults on a broken sink show up
// before any item is accepted.
func NewWriter[K layer.Key[K], V any](dst io.Writer, codec layer.Codec[K, V], opts ...WriterOption[K]) (*Writer[K, V], error) {
	var cfg writerConfig[K]
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Writer[K, V]{
		codec:   codec,
		queue:   zenq.New[*layer.Item[K, V]](writeQueueDepth),
		done:    make(chan struct{}),
		buf:     bufio.NewWriter(dst),
		hashKey: cfg.hashKey,
	}
	if cfg.hashKey != nil {
		w.bloom = newBloomFilter(cfg.expectedKeys, cfg.fpRate)
	}

	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(hdr[0:8], magic)
	binary.LittleEndian.PutUint32(hdr[8:12], layer.LatestVersion.Major)
	binary.LittleEndian.PutUint32(hdr[12:16], layer.LatestVersion.Minor)
	if _, err := w.buf.Write(hdr); err != nil {
		return nil, err
	}
	w.offset = headerSize

	go w.drain()
	return w, nil
}

// Write appends one item. Items must arrive in ascending upper-bound
// order; the writer checks but does not sort.
func (w *Writer[K, V]) Write(ref layer.ItemRef[K, V]) error {
	if w.sealed.Load() {
		return fmt.Errorf("write after flush: %w", layer.ErrClosed)
	}
	item := ref.Cloned()
	w.pending.Add(1)
	w.queue.Write(&item)
	return nil
}

// Flush drains pending writes, appends index, bloom and trailer, and
// flushes the sink. On success it finalizes the layer: the writer is done
// afterwards. A Flush cut short by context cancellation leaves the writer
// unsealed so it can be retried.
func (w *Writer[K, V]) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.sealed.Swap(true) {
		return fmt.Errorf("flush twice: %w", layer.ErrClosed)
	}
	for w.pending.Load() > 0 {
		if err := ctx.Err(); err != nil {
			w.sealed.Store(false)
			return err
		}
		runtime.Gosched()
	}
	w.queue.Close()
	<-w.done

	w.mu.Lock()
	err := w.err
	w.mu.Unlock()
	if err != nil {
		return err
	}
	if err := w.writeFooter(); err != nil {
		return err
	}
	return w.buf.Flush()
}

// drain is the single consumer encoding queued items in arrival order.
func (w *Writer[K, V]) drain() {
	defer close(w.done)
	for {
		item, open := w.queue.Read()
		if !open {
			return
		}
		if err := w.writeItem(item); err != nil {
			w.mu.Lock()
			if w.err == nil {
				w.err = err
			}
			w.mu.Unlock()
		}
		w.pending.Add(-1)
	}
}

func (w *Writer[K, V]) writeItem(item *layer.Item[K, V]) error {
	w.mu.Lock()
	failing := w.err != nil
	w.mu.Unlock()
	if failing {
		return nil // already failing, drop; Flush reports the first fault
	}
	if w.lastKey != nil && item.Key.CmpUpperBound(*w.lastKey) <= 0 {
		return fmt.Errorf("items out of order: %v does not sort after %v", item.Key, *w.lastKey)
	}

	key, err := w.codec.EncodeKey(item.Key)
	if err != nil {
		return err
	}
	val, err := w.codec.EncodeValue(item.Value)
	if err != nil {
		return err
	}

	hdr := make([]byte, recordHdrSize)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(key)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(val)))
	binary.LittleEndian.PutUint64(hdr[8:16], item.Sequence)
	if _, err := w.buf.Write(hdr); err != nil {
		return err
	}
	if _, err := w.buf.Write(key); err != nil {
		return err
	}
	if _, err := w.buf.Write(val); err != nil {
		return err
	}

	w.offsets = append(w.offsets, w.offset)
	w.offset += recordHdrSize + int64(len(key)) + int64(len(val))
	if w.bloom != nil {
		w.bloom.add(w.hashKey(item.Key))
	}
	k := item.Key
	w.lastKey = &k
	return nil
}

func (w *Writer[K, V]) writeFooter() error {
	indexStart := w.offset

	if err := binary.Write(w.buf, binary.LittleEndian, uint32(len(w.offsets))); err != nil {
		return err
	}
	for _, off := range w.offsets {
		if err := binary.Write(w.buf, binary.LittleEndian, off); err != nil {
			return err
		}
	}

	var bloomBytes []byte
	var hashes uint32
	if w.bloom != nil {
		var err error
		bloomBytes, err = w.bloom.marshal()
		if err != nil {
			return err
		}
		hashes = w.bloom.hashes
	}
	if err := binary.Write(w.buf, binary.LittleEndian, hashes); err != nil {
		return err
	}
	if err := binary.Write(w.buf, binary.LittleEndian, uint32(len(bloomBytes))); err != nil {
		return err
	}
	if _, err := w.buf.Write(bloomBytes); err != nil {
		return err
	}

	if err := binary.Write(w.buf, binary.LittleEndian, indexStart); err != nil {
		return err
	}
	return binary.Write(w.buf, binary.LittleEndian, magic)
}
