package layer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceIter serves canned items the way a freshly seeked iterator would.
type sliceIter struct {
	items []Item[PointKey[int], string]
	idx   int
}

func (s *sliceIter) Advance(ctx context.Context) error {
	if s.idx < len(s.items) {
		s.idx++
	}
	return nil
}

func (s *sliceIter) Get() (ItemRef[PointKey[int], string], bool) {
	if s.idx >= len(s.items) {
		return ItemRef[PointKey[int], string]{}, false
	}
	return s.items[s.idx].Ref(), true
}

func items(vals ...int) []Item[PointKey[int], string] {
	out := make([]Item[PointKey[int], string], len(vals))
	for i, v := range vals {
		out[i] = Item[PointKey[int], string]{Key: Point(v), Value: "v", Sequence: uint64(i)}
	}
	return out
}

func collect(t *testing.T, it Iterator[PointKey[int], string]) []int {
	var got []int
	for {
		ref, ok := it.Get()
		if !ok {
			return got
		}
		got = append(got, ref.Key.V)
		require.NoError(t, it.Advance(context.Background()))
	}
}

func TestFilterVisitsMatchingSubsequence(t *testing.T) {
	even := func(r ItemRef[PointKey[int], string]) bool { return r.Key.V%2 == 0 }

	f, err := NewFilter[PointKey[int], string](context.Background(), &sliceIter{items: items(1, 2, 3, 4, 5, 6)}, even)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, collect(t, f))
}

func TestFilterSkipsLeadingNonMatches(t *testing.T) {
	f, err := NewFilter[PointKey[int], string](context.Background(), &sliceIter{items: items(1, 3, 5, 8)},
		func(r ItemRef[PointKey[int], string]) bool { return r.Key.V%2 == 0 })
	require.NoError(t, err)

	ref, ok := f.Get()
	require.True(t, ok)
	assert.Equal(t, 8, ref.Key.V)
}

func TestFilterEmptyAndAllRejected(t *testing.T) {
	reject := func(ItemRef[PointKey[int], string]) bool { return false }

	f, err := NewFilter[PointKey[int], string](context.Background(), &sliceIter{}, reject)
	require.NoError(t, err)
	_, ok := f.Get()
	assert.False(t, ok)

	f, err = NewFilter[PointKey[int], string](context.Background(), &sliceIter{items: items(1, 2, 3)}, reject)
	require.NoError(t, err)
	_, ok = f.Get()
	assert.False(t, ok)
	assert.NoError(t, f.Advance(context.Background()))
	_, ok = f.Get()
	assert.False(t, ok)
}

func TestFilterGetIdempotent(t *testing.T) {
	f, err := NewFilter[PointKey[int], string](context.Background(), &sliceIter{items: items(1, 2)},
		func(r ItemRef[PointKey[int], string]) bool { return r.Key.V == 2 })
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ref, ok := f.Get()
		require.True(t, ok)
		assert.Equal(t, 2, ref.Key.V)
	}
}
