package memlayer

import (
	"github.com/tidwall/btree"

	"github.com/arjunsk/stratakv/pkg/layer"
)

// cursor is the privileged mutable iterator behind MergeInto. It operates
// on the uncommitted working copy of the tree, never on published state, so
// erase and insert are invisible to readers until commitAndWait.
//
// Position is tracked by key, not by tree internals: every movement
// re-seeks from the current item. Splices landing before the current
// position are therefore never revisited; ones landing after it may be,
// which MergeResult's contract makes harmless.
type cursor[K layer.MergeableKey[K], V any] struct {
	tree  *btree.BTreeG[layer.Item[K, V]]
	item  layer.Item[K, V]
	valid bool
}

// newCursor positions at the first item whose upper bound is >= that of
// lowerBound: the earliest item whose range can still reach the incoming
// one. Items ending before lowerBound cannot overlap it and are skipped.
func newCursor[K layer.MergeableKey[K], V any](tree *btree.BTreeG[layer.Item[K, V]], lowerBound K) *cursor[K, V] {
	c := &cursor[K, V]{tree: tree}
	tree.Ascend(layer.Item[K, V]{Key: lowerBound}, func(item layer.Item[K, V]) bool {
		c.item = item
		c.valid = true
		return false
	})
	return c
}

func (c *cursor[K, V]) get() (layer.Item[K, V], bool) {
	return c.item, c.valid
}

// advance moves to the first item sorting strictly after the current one.
func (c *cursor[K, V]) advance() {
	if !c.valid {
		return
	}
	from := c.item
	c.valid = false
	c.tree.Ascend(from, func(item layer.Item[K, V]) bool {
		if item.Key.CmpUpperBound(from.Key) <= 0 {
			return true
		}
		c.item = item
		c.valid = true
		return false
	})
}

// erase deletes the item under the cursor; the cursor lands on the
// following item.
func (c *cursor[K, V]) erase() {
	if !c.valid {
		return
	}
	erased := c.item
	c.tree.Delete(erased)
	c.valid = false
	c.tree.Ascend(erased, func(item layer.Item[K, V]) bool {
		c.item = item
		c.valid = true
		return false
	})
}

// insert splices item at its key position without moving the cursor.
func (c *cursor[K, V]) insert(item layer.Item[K, V]) {
	c.tree.Set(item)
}

// mergeInto drives the conflict walk: consult merge for each existing
// candidate until the incoming item is fully placed.
func (c *cursor[K, V]) mergeInto(incoming layer.Item[K, V], merge layer.MergeFn[K, V]) {
	for c.valid {
		existing := c.item
		res := merge(&existing, &incoming)
		switch res.Decision {
		case layer.MergeKeepExisting:
			c.advance()
		case layer.MergeInsertBefore:
			c.insert(incoming)
			return
		case layer.MergeResolved:
			c.erase()
			for _, rep := range res.Replacements {
				c.insert(rep)
			}
			if res.Remaining == nil {
				return
			}
			incoming = *res.Remaining
		}
	}
	c.insert(incoming)
}
