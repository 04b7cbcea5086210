package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointKeyOrderingsAgree(t *testing.T) {
	keys := []PointKey[int]{Point(3), Point(1), Point(2), Point(1)}
	for _, a := range keys {
		for _, b := range keys {
			natural := cmpOrdered(a.V, b.V)
			assert.Equal(t, natural, a.CmpUpperBound(b))
			assert.Equal(t, natural, a.CmpLowerBound(b))
			assert.Equal(t, natural == 0, a.EqualKey(b))
		}
	}
}

func TestPointKeyNoNextKey(t *testing.T) {
	_, ok := Point("abc").NextKey()
	assert.False(t, ok)
}

func TestBoundValidate(t *testing.T) {
	assert.NoError(t, Start[PointKey[int]]().Validate())
	assert.NoError(t, Included(Point(7)).Validate())
	assert.ErrorIs(t, Excluded(Point(7)).Validate(), ErrInvalidBound)
}

func TestBoundKey(t *testing.T) {
	b := Included(Point(42))
	assert.False(t, b.FromStart())
	assert.Equal(t, 42, b.Key().V)
	assert.True(t, Start[PointKey[int]]().FromStart())
}

func TestVersionCmp(t *testing.T) {
	assert.Equal(t, 0, Version{1, 2}.Cmp(Version{1, 2}))
	assert.Equal(t, -1, Version{1, 2}.Cmp(Version{1, 3}))
	assert.Equal(t, 1, Version{2, 0}.Cmp(Version{1, 9}))
	assert.Equal(t, "1.2", Version{1, 2}.String())
}

func TestItemRefCloned(t *testing.T) {
	item := Item[PointKey[int], string]{Key: Point(1), Value: "a", Sequence: 9}
	clone := item.Ref().Cloned()
	assert.Equal(t, item, clone)

	clone.Value = "b"
	assert.Equal(t, "a", item.Value)
}
