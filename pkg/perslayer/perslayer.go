package perslayer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/arjunsk/stratakv/pkg/layer"
	"github.com/arjunsk/stratakv/pkg/log"
)

// Layer is an immutable persisted run read through a BackingObject. The
// record index is loaded at open; item reads go to the object on demand, so
// Seek and Advance may fault and surface those faults unretried.
type Layer[K layer.Key[K], V any] struct {
	obj     layer.BackingObject
	codec   layer.Codec[K, V]
	version layer.Version
	offsets []int64
	bloom   *bloomFilter
	hashKey func(K) []byte
	readers *layer.TokenRegistry
}

var _ layer.Layer[layer.PointKey[int], []byte] = (*Layer[layer.PointKey[int], []byte])(nil)

// Open validates the trailer and header, loads the index and bloom filter,
// and returns the layer. hashKey may be nil; it only enables MaybeContains.
// A layer persisted under an older encoding opens fine and keeps reporting
// that version.
func Open[K layer.Key[K], V any](obj layer.BackingObject, codec layer.Codec[K, V], hashKey func(K) []byte) (*Layer[K, V], error) {
	size := obj.Size()
	if size < headerSize+trailerSize {
		return nil, fmt.Errorf("object %q is %d bytes, too small: %w", obj.Name(), size, layer.ErrCorrupt)
	}

	trailer := make([]byte, trailerSize)
	if _, err := obj.ReadAt(trailer, size-trailerSize); err != nil {
		return nil, err
	}
	indexStart := int64(binary.LittleEndian.Uint64(trailer[0:8]))
	if got := binary.LittleEndian.Uint64(trailer[8:16]); got != magic {
		return nil, fmt.Errorf("object %q: bad trailer magic %#x: %w", obj.Name(), got, layer.ErrCorrupt)
	}
	if indexStart < headerSize || indexStart > size-trailerSize {
		return nil, fmt.Errorf("object %q: index start %d out of range: %w", obj.Name(), indexStart, layer.ErrCorrupt)
	}

	hdr := make([]byte, headerSize)
	if _, err := obj.ReadAt(hdr, 0); err != nil {
		return nil, err
	}
	if got := binary.LittleEndian.Uint64(hdr[0:8]); got != magic {
		return nil, fmt.Errorf("object %q: bad header magic %#x: %w", obj.Name(), got, layer.ErrCorrupt)
	}
	version := layer.Version{
		Major: binary.LittleEndian.Uint32(hdr[8:12]),
		Minor: binary.LittleEndian.Uint32(hdr[12:16]),
	}
	if version.Cmp(layer.LatestVersion) > 0 {
		return nil, fmt.Errorf("object %q: version %s is newer than supported %s", obj.Name(), version, layer.LatestVersion)
	}

	footer := make([]byte, size-trailerSize-indexStart)
	if _, err := obj.ReadAt(footer, indexStart); err != nil {
		return nil, err
	}
	l := &Layer[K, V]{
		obj:     obj,
		codec:   codec,
		version: version,
		hashKey: hashKey,
		readers: layer.NewTokenRegistry(),
	}
	if err := l.parseFooter(footer, indexStart); err != nil {
		return nil, err
	}
	log.Debugf("perslayer: opened %q version %s with %d items", obj.Name(), version, len(l.offsets))
	return l, nil
}

func (l *Layer[K, V]) parseFooter(footer []byte, indexStart int64) error {
	corrupt := func(what string) error {
		return fmt.Errorf("object %q: truncated %s: %w", l.obj.Name(), what, layer.ErrCorrupt)
	}
	if len(footer) < 4 {
		return corrupt("index")
	}
	count := binary.LittleEndian.Uint32(footer[0:4])
	footer = footer[4:]
	if int64(count)*8 > int64(len(footer)) {
		return corrupt("index")
	}
	l.offsets = make([]int64, count)
	for i := range l.offsets {
		off := int64(binary.LittleEndian.Uint64(footer[i*8 : i*8+8]))
		if off < headerSize || off >= indexStart {
			return fmt.Errorf("object %q: record offset %d out of range: %w", l.obj.Name(), off, layer.ErrCorrupt)
		}
		l.offsets[i] = off
	}
	footer = footer[count*8:]

	if len(footer) < 8 {
		return corrupt("bloom")
	}
	hashes := binary.LittleEndian.Uint32(footer[0:4])
	bloomLen := binary.LittleEndian.Uint32(footer[4:8])
	footer = footer[8:]
	if int64(bloomLen) > int64(len(footer)) {
		return corrupt("bloom")
	}
	if bloomLen > 0 {
		bloom, err := unmarshalBloomFilter(footer[:bloomLen], hashes)
		if err != nil {
			return fmt.Errorf("object %q: bad bloom filter: %w", l.obj.Name(), err)
		}
		l.bloom = bloom
	}
	return nil
}

// Handle returns the backing object.
func (l *Layer[K, V]) Handle() layer.BackingObject {
	return l.obj
}

// Version is the encoding this layer was persisted under.
func (l *Layer[K, V]) Version() layer.Version {
	return l.version
}

// Len is the item count from the index.
func (l *Layer[K, V]) Len() int {
	return len(l.offsets)
}

// Lock returns a reader token, or nil once Close has run.
func (l *Layer[K, V]) Lock() *layer.ReaderToken {
	return l.readers.Acquire()
}

// Close drains outstanding readers. The backing object stays owned by the
// I/O layer; closing the layer does not destroy it.
func (l *Layer[K, V]) Close(ctx context.Context) error {
	return l.readers.CloseAndDrain(ctx)
}

// MaybeContains is a bloom probe for an exact key. True means "possibly
// present"; it is always true without a bloom filter or hash func.
func (l *Layer[K, V]) MaybeContains(key K) bool {
	if l.bloom == nil || l.hashKey == nil {
		return true
	}
	return l.bloom.maybeContains(l.hashKey(key))
}

// Seek binary-searches the index for the first item whose upper bound is
// >= the bound key. Decode faults during the search propagate.
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

	idx := 0
	if !bound.FromStart() {
		key := bound.Key()
		lo, hi := 0, len(l.offsets)
		for lo < hi {
			mid := (lo + hi) / 2
			item, err := l.readItem(mid)
			if err != nil {
				return nil, err
			}
			if item.Key.CmpUpperBound(key) < 0 {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		idx = lo
	}

	it := &iterator[K, V]{l: l, idx: idx}
	if idx < len(l.offsets) {
		item, err := l.readItem(idx)
		if err != nil {
			return nil, err
		}
		it.item = item
		it.valid = true
	}
	return it, nil
}

func (l *Layer[K, V]) readItem(idx int) (layer.Item[K, V], error) {
	var zero layer.Item[K, V]
	off := l.offsets[idx]

	hdr := make([]byte, recordHdrSize)
	if _, err := l.obj.ReadAt(hdr, off); err != nil {
		return zero, err
	}
	keyLen := binary.LittleEndian.Uint32(hdr[0:4])
	valLen := binary.LittleEndian.Uint32(hdr[4:8])
	seq := binary.LittleEndian.Uint64(hdr[8:16])

	payload := make([]byte, int64(keyLen)+int64(valLen))
	if _, err := l.obj.ReadAt(payload, off+recordHdrSize); err != nil {
		if err == io.EOF {
			err = fmt.Errorf("object %q: record at %d truncated: %w", l.obj.Name(), off, layer.ErrCorrupt)
		}
		return zero, err
	}

	key, err := l.codec.DecodeKey(l.version, payload[:keyLen])
	if err != nil {
		return zero, err
	}
	val, err := l.codec.DecodeValue(l.version, payload[keyLen:])
	if err != nil {
		return zero, err
	}
	return layer.Item[K, V]{Key: key, Value: val, Sequence: seq}, nil
}

type iterator[K layer.Key[K], V any] struct {
	l     *Layer[K, V]
	idx   int
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
	i.idx++
	if i.idx >= len(i.l.offsets) {
		i.valid = false
		return nil
	}
	item, err := i.l.readItem(i.idx)
	if err != nil {
		return err
	}
	i.item = item
	return nil
}

func (i *iterator[K, V]) Get() (layer.ItemRef[K, V], bool) {
	if !i.valid {
		return layer.ItemRef[K, V]{}, false
	}
	return i.item.Ref(), true
}
