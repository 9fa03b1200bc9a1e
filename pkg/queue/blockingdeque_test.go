package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbtaylor/concurrent/pkg/queue"
)

func TestBlockingDeque_PutFirstTakeLast(t *testing.T) {
	d := queue.NewBlockingDeque[int](4)
	ctx := context.Background()
	require.NoError(t, d.PutFirst(ctx, 1))
	require.NoError(t, d.PutFirst(ctx, 2))
	// deque is now [2, 1] head to tail.
	assert.Equal(t, []int{2, 1}, d.ToArray())

	v, err := d.TakeLast(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBlockingDeque_BothEndsBlockWhenFull(t *testing.T) {
	d := queue.NewBlockingDeque[int](1)
	ctx := context.Background()
	require.NoError(t, d.PutFirst(ctx, 1))

	ok, err := d.OfferLast(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlockingDeque_RemoveFirstAndLastOccurrence(t *testing.T) {
	d := queue.NewBlockingDeque[int](10)
	ctx := context.Background()
	for _, v := range []int{1, 2, 3, 2, 1} {
		require.NoError(t, d.PutLast(ctx, v))
	}
	assert.True(t, d.RemoveFirstOccurrence(2, eqInt))
	assert.Equal(t, []int{1, 3, 2, 1}, d.ToArray())

	assert.True(t, d.RemoveLastOccurrence(1, eqInt))
	assert.Equal(t, []int{1, 3, 2}, d.ToArray())
}

func TestBlockingDeque_ClearSignalsNotFullOnce(t *testing.T) {
	d := queue.NewBlockingDeque[int](1)
	ctx := context.Background()
	require.NoError(t, d.PutLast(ctx, 1))

	putDone := make(chan error, 1)
	go func() { putDone <- d.PutLast(ctx, 2) }()

	time.Sleep(10 * time.Millisecond)
	d.Clear()

	select {
	case err := <-putDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked put never woke after Clear")
	}
	assert.Equal(t, 1, d.Size())
}

func TestBlockingDeque_IteratorsForwardAndDescending(t *testing.T) {
	d := queue.NewBlockingDeque[int](10)
	ctx := context.Background()
	for _, v := range []int{1, 2, 3} {
		require.NoError(t, d.PutLast(ctx, v))
	}

	it := d.Iterator()
	var forward []int
	for it.HasNext() {
		v, _ := it.Next()
		forward = append(forward, v)
	}
	assert.Equal(t, []int{1, 2, 3}, forward)

	dit := d.DescendingIterator()
	var backward []int
	for dit.HasNext() {
		v, _ := dit.Next()
		backward = append(backward, v)
	}
	assert.Equal(t, []int{3, 2, 1}, backward)
}

func TestBlockingDeque_IteratorToleratesInteriorRemoval(t *testing.T) {
	d := queue.NewBlockingDeque[int](10)
	ctx := context.Background()
	for _, v := range []int{1, 2, 3} {
		require.NoError(t, d.PutLast(ctx, v))
	}
	it := d.Iterator()
	d.RemoveFirstOccurrence(2, eqInt)

	var seen []int
	for it.HasNext() {
		v, _ := it.Next()
		seen = append(seen, v)
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
}
