package aqs_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/aqs"
)

// binarySemaphore is a minimal aqs.Ops implementation (a one-permit
// exclusive semaphore) used to exercise the engine directly without
// going through package lock.
type binarySemaphore struct {
	s      *aqs.Sync
	permit atomic.Int32
}

func newBinarySemaphore() *binarySemaphore {
	b := &binarySemaphore{}
	b.s = aqs.New(b)
	b.permit.Store(1)
	return b
}

func (b *binarySemaphore) TryAcquire(int64) bool {
	return b.permit.CompareAndSwap(1, 0)
}
func (b *binarySemaphore) TryRelease(int64) bool {
	b.permit.Store(1)
	return true
}
func (b *binarySemaphore) TryAcquireShared(int64) int64 { return -1 }
func (b *binarySemaphore) TryReleaseShared(int64) bool  { return false }
func (b *binarySemaphore) IsHeldExclusively() bool      { return b.permit.Load() == 0 }

func TestSync_AcquireRelease(t *testing.T) {
	b := newBinarySemaphore()
	b.s.Acquire(1)
	assert.True(t, b.IsHeldExclusively())
	require.NoError(t, b.s.Release(1))
	assert.False(t, b.IsHeldExclusively())
}

func TestSync_SecondAcquirerBlocksUntilRelease(t *testing.T) {
	b := newBinarySemaphore()
	b.s.Acquire(1)

	acquired := make(chan struct{})
	go func() {
		b.s.Acquire(1)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquirer proceeded while first held the permit")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, b.s.Release(1))
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquirer never woke after release")
	}
}

func TestSync_AcquireCtxReturnsInterruptedOnCancel(t *testing.T) {
	b := newBinarySemaphore()
	b.s.Acquire(1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.s.AcquireCtx(ctx, 1) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, xerrors.ErrInterrupted)
}

func TestSync_TryAcquireNanosTimesOut(t *testing.T) {
	b := newBinarySemaphore()
	b.s.Acquire(1)

	ok, err := b.s.TryAcquireNanos(context.Background(), 1, 20*time.Millisecond)
	assert.False(t, ok)
	assert.ErrorIs(t, err, xerrors.ErrTimeout)
}

func TestSync_HasQueuedThreads(t *testing.T) {
	b := newBinarySemaphore()
	b.s.Acquire(1)
	assert.False(t, b.s.HasQueuedThreads())

	released := make(chan struct{})
	go func() {
		b.s.Acquire(1)
		<-released
		_ = b.s.Release(1)
	}()

	require.Eventually(t, func() bool { return b.s.HasQueuedThreads() }, time.Second, time.Millisecond)
	require.NoError(t, b.s.Release(1))
	close(released)
}
