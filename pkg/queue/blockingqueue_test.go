package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/queue"
)

func eqInt(a, b int) bool { return a == b }

func TestBlockingQueue_PutTakeSerial(t *testing.T) {
	q := queue.NewBlockingQueue[int](4)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))
	v, err := q.Take(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBlockingQueue_FIFOOrder(t *testing.T) {
	q := queue.NewBlockingQueue[int](4)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	for i := 1; i <= 3; i++ {
		v, err := q.Take(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestBlockingQueue_ScenarioBackpressure(t *testing.T) {
	q := queue.NewBlockingQueue[int](2)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))

	putDone := make(chan error, 1)
	go func() { putDone <- q.Put(ctx, 3) }()

	select {
	case <-putDone:
		t.Fatal("third put completed before any take freed a slot")
	case <-time.After(10 * time.Millisecond):
	}

	v, err := q.Take(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case err := <-putDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("third put never completed after a take freed a slot")
	}

	assert.Equal(t, []int{2, 3}, q.ToArray())

	v, err = q.Take(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, []int{3}, q.ToArray())
}

func TestBlockingQueue_OfferNonBlockingWhenFull(t *testing.T) {
	q := queue.NewBlockingQueue[int](1)
	ok, err := q.Offer(1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Offer(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlockingQueue_PollEmptyReturnsFalse(t *testing.T) {
	q := queue.NewBlockingQueue[int](1)
	_, ok := q.Poll()
	assert.False(t, ok)
}

func TestBlockingQueue_SizeInvariant(t *testing.T) {
	q := queue.NewBlockingQueue[int](10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	assert.Equal(t, 5, q.Size())
	assert.Equal(t, 5, q.RemainingCapacity())
	assert.LessOrEqual(t, q.Size(), 10)
	assert.GreaterOrEqual(t, q.Size(), 0)
}

func TestBlockingQueue_DrainTo(t *testing.T) {
	q := queue.NewBlockingQueue[int](10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	var out []int
	n := q.DrainTo(&out, 0)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, out)
	assert.Equal(t, 0, q.Size())
}

func TestBlockingQueue_RemoveAndContains(t *testing.T) {
	q := queue.NewBlockingQueue[int](10)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))
	require.NoError(t, q.Put(ctx, 3))

	assert.True(t, q.Contains(2, eqInt))
	assert.True(t, q.Remove(2, eqInt))
	assert.False(t, q.Contains(2, eqInt))
	assert.Equal(t, []int{1, 3}, q.ToArray())
}

func TestBlockingQueue_OfferTimeoutGivesUp(t *testing.T) {
	q := queue.NewBlockingQueue[int](1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))

	ok, err := q.OfferTimeout(ctx, 2, 20*time.Millisecond)
	assert.False(t, ok)
	assert.ErrorIs(t, err, xerrors.ErrTimeout)
}
