package cowlist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/cowlist"
)

func eqInt(a, b int) bool { return a == b }

func TestList_AddAndGet(t *testing.T) {
	l := cowlist.New[int]()
	l.Add(1)
	l.Add(2)
	v, err := l.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, l.Size())
}

func TestList_ScenarioIteratorIsolation(t *testing.T) {
	l := cowlist.NewFrom([]int{1, 2, 3})
	it := l.Iterator()

	l.Add(4)

	var preWrite []int
	for it.HasNext() {
		v, _ := it.Next()
		preWrite = append(preWrite, v)
	}
	assert.Equal(t, []int{1, 2, 3}, preWrite)

	it2 := l.Iterator()
	var postWrite []int
	for it2.HasNext() {
		v, _ := it2.Next()
		postWrite = append(postWrite, v)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, postWrite)
}

func TestList_RemoveAt(t *testing.T) {
	l := cowlist.NewFrom([]int{1, 2, 3})
	v, err := l.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, []int{1, 3}, l.ToArray())
}

func TestList_AddIfAbsent(t *testing.T) {
	l := cowlist.New[int]()
	assert.True(t, l.AddIfAbsent(1, eqInt))
	assert.False(t, l.AddIfAbsent(1, eqInt))
	assert.Equal(t, 1, l.Size())
}

func TestList_IndexOfAndContains(t *testing.T) {
	l := cowlist.NewFrom([]int{5, 6, 7})
	assert.Equal(t, 1, l.IndexOf(6, eqInt))
	assert.Equal(t, -1, l.IndexOf(99, eqInt))
	assert.True(t, l.Contains(7, eqInt))
}

func TestList_RetainAllAndRemoveAll(t *testing.T) {
	l := cowlist.NewFrom([]int{1, 2, 3, 4, 5})
	modified := l.RetainAll([]int{2, 4}, eqInt)
	assert.True(t, modified)
	assert.Equal(t, []int{2, 4}, l.ToArray())

	l2 := cowlist.NewFrom([]int{1, 2, 3})
	modified = l2.RemoveAll([]int{2}, eqInt)
	assert.True(t, modified)
	assert.Equal(t, []int{1, 3}, l2.ToArray())
}

func TestList_OutOfBoundsReturnsError(t *testing.T) {
	l := cowlist.New[int]()
	_, err := l.Get(0)
	assert.Error(t, err)
}

func TestList_SublistObservesParentMutation(t *testing.T) {
	l := cowlist.NewFrom([]int{1, 2, 3, 4, 5})
	sub, err := l.Sublist(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, sub.Size())

	v, err := sub.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	l.Add(6)

	_, err = sub.Get(0)
	assert.ErrorIs(t, err, xerrors.ErrConcurrentModification)
	_, err = sub.ToArray()
	assert.ErrorIs(t, err, xerrors.ErrConcurrentModification)
}

func TestSet_AddEnforcesUniqueness(t *testing.T) {
	s := cowlist.NewSet[int](eqInt)
	assert.True(t, s.Add(1))
	assert.False(t, s.Add(1))
	assert.Equal(t, 1, s.Size())
	assert.True(t, s.Contains(1))
}
