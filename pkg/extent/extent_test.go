package extent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunsk/stratakv/pkg/layer"
)

func TestOrderingsAreStrictTotalOrders(t *testing.T) {
	keys := []Key{
		New(0, 100), New(50, 150), New(0, 50), New(100, 200),
		New(0, 100), New(10, 20), New(20, 30), New(0, 0),
	}
	cmps := map[string]func(a, b Key) int{
		"upper": Key.CmpUpperBound,
		"lower": Key.CmpLowerBound,
	}
	for name, cmp := range cmps {
		for _, a := range keys {
			for _, b := range keys {
				// antisymmetry
				assert.Equal(t, -cmp(b, a), cmp(a, b), "%s: %v vs %v", name, a, b)
				// totality: equal order means equal key
				if cmp(a, b) == 0 {
					assert.Equal(t, a, b, "%s", name)
				}
				for _, c := range keys {
					// transitivity
					if cmp(a, b) <= 0 && cmp(b, c) <= 0 {
						assert.LessOrEqual(t, cmp(a, c), 0, "%s: %v %v %v", name, a, b, c)
					}
				}
			}
		}
	}
}

func TestUpperVsLowerBoundOrder(t *testing.T) {
	a, b := New(0, 100), New(50, 60)
	// a ends after b but starts before it.
	assert.Equal(t, 1, a.CmpUpperBound(b))
	assert.Equal(t, -1, a.CmpLowerBound(b))
}

func TestOverlaps(t *testing.T) {
	assert.True(t, New(0, 100).Overlaps(New(50, 150)))
	assert.True(t, New(50, 150).Overlaps(New(0, 100)))
	assert.True(t, New(0, 100).Overlaps(New(20, 30)))
	assert.False(t, New(0, 100).Overlaps(New(100, 200)))
	assert.False(t, New(0, 50).Overlaps(New(50, 100)))
}

func TestNextKey(t *testing.T) {
	next, ok := New(0, 100).NextKey()
	require.True(t, ok)
	assert.Equal(t, New(100, 101), next)
	// The successor sorts after the key under lower-bound order.
	assert.Equal(t, -1, New(0, 100).CmpLowerBound(next))
}

func TestSearchKeyAt(t *testing.T) {
	k := At(42)
	assert.Equal(t, uint64(42), k.Start)
	assert.Equal(t, uint64(42), k.End)
	// A zero-length key at X sorts at or before any extent covering X.
	assert.LessOrEqual(t, k.CmpUpperBound(New(0, 100)), 0)
}

func item(start, end uint64, v string, seq uint64) layer.Item[Key, string] {
	return layer.Item[Key, string]{Key: New(start, end), Value: v, Sequence: seq}
}

func TestMergeNewestWinsDisjoint(t *testing.T) {
	existing := item(0, 100, "a", 1)
	incoming := item(100, 200, "b", 2)
	res := MergeNewestWins(&existing, &incoming)
	assert.Equal(t, layer.MergeKeepExisting, res.Decision)

	incoming2 := item(200, 300, "b", 2)
	existing2 := item(300, 400, "a", 1)
	res = MergeNewestWins(&existing2, &incoming2)
	assert.Equal(t, layer.MergeInsertBefore, res.Decision)
}

func TestMergeNewestWinsTrimsLeft(t *testing.T) {
	existing := item(0, 100, "a", 1)
	incoming := item(50, 150, "b", 2)
	res := MergeNewestWins(&existing, &incoming)
	require.Equal(t, layer.MergeResolved, res.Decision)
	require.Len(t, res.Replacements, 1)
	assert.Equal(t, New(0, 50), res.Replacements[0].Key)
	assert.Equal(t, "a", res.Replacements[0].Value)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, incoming, *res.Remaining)
}

func TestMergeNewestWinsSplitsAroundContained(t *testing.T) {
	existing := item(0, 100, "a", 1)
	incoming := item(20, 30, "b", 2)
	res := MergeNewestWins(&existing, &incoming)
	require.Equal(t, layer.MergeResolved, res.Decision)
	require.Len(t, res.Replacements, 2)
	assert.Equal(t, New(0, 20), res.Replacements[0].Key)
	assert.Equal(t, New(30, 100), res.Replacements[1].Key)
}

func TestMergeNewestWinsSwallowsCovered(t *testing.T) {
	existing := item(20, 30, "a", 1)
	incoming := item(0, 100, "b", 2)
	res := MergeNewestWins(&existing, &incoming)
	require.Equal(t, layer.MergeResolved, res.Decision)
	assert.Empty(t, res.Replacements)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, incoming, *res.Remaining)
}
