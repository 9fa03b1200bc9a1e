package cmap_test

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbtaylor/concurrent/pkg/cmap"
)

func newStringIntMap(opts ...cmap.Option[string, int]) *cmap.Map[string, int] {
	base := []cmap.Option[string, int]{cmap.WithHasher[string, int](cmap.StringHasher())}
	return cmap.New[string, int](append(base, opts...)...)
}

func TestMap_PutGetRoundtrip(t *testing.T) {
	m := newStringIntMap()
	_, had, err := m.Put("a", 1)
	require.NoError(t, err)
	assert.False(t, had)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestMap_PutIfAbsentKeepsFirstValue(t *testing.T) {
	m := newStringIntMap()
	_, _, err := m.PutIfAbsent("k", 1)
	require.NoError(t, err)
	_, _, err = m.PutIfAbsent("k", 2)
	require.NoError(t, err)

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestMap_RemoveThenContainsKeyIsFalse(t *testing.T) {
	m := newStringIntMap()
	_, _, _ = m.Put("k", 1)
	_, ok := m.Remove("k")
	assert.True(t, ok)
	assert.False(t, m.ContainsKey("k"))
}

func TestMap_ScenarioBasicRoundtrip(t *testing.T) {
	m := cmap.New[string, int](
		cmap.WithConcurrencyLevel[string, int](4),
		cmap.WithInitialCapacity[string, int](16),
		cmap.WithLoadFactor[string, int](0.75),
		cmap.WithHasher[string, int](cmap.StringHasher()),
	)
	for i := 0; i < 26; i++ {
		key := string(rune('a' + i))
		_, _, err := m.Put(key, i+1)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(26), m.Size())

	v, ok := m.Get("m")
	require.True(t, ok)
	assert.Equal(t, 13, v)

	old, had := m.Remove("a")
	require.True(t, had)
	assert.Equal(t, 1, old)
	assert.False(t, m.ContainsKey("a"))
	assert.Len(t, m.Keys(), 25)
}

func TestMap_ScenarioResizeKeepsAllEntries(t *testing.T) {
	m := cmap.New[int, string](
		cmap.WithConcurrencyLevel[int, string](1),
		cmap.WithInitialCapacity[int, string](2),
		cmap.WithLoadFactor[int, string](0.75),
		cmap.WithHasher[int, string](cmap.IntHasher()),
	)
	for i := 0; i < 100; i++ {
		_, _, err := m.Put(i, strconv.Itoa(i))
		require.NoError(t, err)
	}
	for i := 0; i < 100; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		assert.Equal(t, strconv.Itoa(i), v)
	}
	assert.Equal(t, int64(100), m.Size())
}

func TestMap_ClearEmptiesAllSegments(t *testing.T) {
	m := newStringIntMap(cmap.WithConcurrencyLevel[string, int](8))
	for i := 0; i < 50; i++ {
		_, _, _ = m.Put(strconv.Itoa(i), i)
	}
	m.Clear()
	assert.Equal(t, int64(0), m.Size())
	assert.True(t, m.IsEmpty())
}

func TestMap_ReplaceExpectedActsAsCompareAndSwap(t *testing.T) {
	m := newStringIntMap()
	_, _, _ = m.Put("k", 1)

	ok, err := m.ReplaceExpected("k", 99, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.ReplaceExpected("k", 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	v, _ := m.Get("k")
	assert.Equal(t, 2, v)
}

func TestMap_ConcurrentPutsAcrossSegmentsAllSucceed(t *testing.T) {
	m := newStringIntMap(cmap.WithConcurrencyLevel[string, int](16))
	const n = 2000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _ = m.Put(strconv.Itoa(i), i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(n), m.Size())
}

func TestMap_RejectsNilValue(t *testing.T) {
	m := cmap.New[string, *int]()
	_, _, err := m.Put("k", nil)
	assert.Error(t, err)
}

func TestMap_RejectsNilKey(t *testing.T) {
	m := cmap.New[*int, int](cmap.WithHasher[*int, int](func(k *int) uint32 {
		if k == nil {
			return 0
		}
		return uint32(*k)
	}))
	_, _, err := m.Put(nil, 1)
	assert.Error(t, err)
}
