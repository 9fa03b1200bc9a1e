package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/lock"
)

func TestReentrantLock_BasicMutualExclusion(t *testing.T) {
	l := lock.NewReentrantLock(false)
	require.NoError(t, l.Lock())
	assert.True(t, l.IsLocked())
	assert.True(t, l.IsHeldByCurrentThread())
	assert.Equal(t, int64(1), l.HoldCount())
	require.NoError(t, l.Unlock())
	assert.False(t, l.IsLocked())
}

func TestReentrantLock_Reentrancy(t *testing.T) {
	l := lock.NewReentrantLock(false)
	require.NoError(t, l.Lock())
	require.NoError(t, l.Lock())
	assert.Equal(t, int64(2), l.HoldCount())
	require.NoError(t, l.Unlock())
	assert.True(t, l.IsLocked())
	require.NoError(t, l.Unlock())
	assert.False(t, l.IsLocked())
}

func TestReentrantLock_UnlockByNonOwnerFails(t *testing.T) {
	l := lock.NewReentrantLock(false)
	require.NoError(t, l.Lock())

	done := make(chan error, 1)
	go func() { done <- l.Unlock() }()
	err := <-done
	assert.ErrorIs(t, err, xerrors.ErrMonitorState)
}

func TestReentrantLock_ExcludesConcurrentGoroutine(t *testing.T) {
	l := lock.NewReentrantLock(false)
	require.NoError(t, l.Lock())

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, l.Lock())
		close(acquired)
		_ = l.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired lock while first goroutine held it")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, l.Unlock())
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine never acquired lock after release")
	}
}

func TestReentrantLock_LockCtxRespectsCancellation(t *testing.T) {
	l := lock.NewReentrantLock(false)
	require.NoError(t, l.Lock())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.LockCtx(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, xerrors.ErrInterrupted)
}

func TestReentrantLock_TryLock(t *testing.T) {
	l := lock.NewReentrantLock(false)
	assert.True(t, l.TryLock())
	assert.True(t, l.TryLock()) // reentrant
	require.NoError(t, l.Unlock())
	require.NoError(t, l.Unlock())
	assert.False(t, l.IsLocked())

	require.NoError(t, l.Lock())
	done := make(chan bool, 1)
	go func() { done <- l.TryLock() }()
	assert.False(t, <-done)
	require.NoError(t, l.Unlock())
}

func TestReentrantLock_FairOrdersWaitersFIFO(t *testing.T) {
	l := lock.NewReentrantLock(true)
	require.NoError(t, l.Lock())

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, l.Lock())
		mu.Lock()
		order = append(order, "B")
		mu.Unlock()
		_ = l.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(15 * time.Millisecond)
		require.NoError(t, l.Lock())
		mu.Lock()
		order = append(order, "C")
		mu.Unlock()
		_ = l.Unlock()
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, l.Unlock())
	wg.Wait()

	assert.Equal(t, []string{"B", "C"}, order)
}

func TestReentrantLock_ConditionAwaitSignal(t *testing.T) {
	l := lock.NewReentrantLock(false)
	cond := l.NewCondition()

	waiting := make(chan struct{})
	resumedHoldingLock := make(chan bool, 1)

	go func() {
		require.NoError(t, l.Lock())
		close(waiting)
		err := cond.Await(context.Background())
		resumedHoldingLock <- (err == nil && l.IsHeldByCurrentThread())
		_ = l.Unlock()
	}()

	<-waiting
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Lock())
	require.NoError(t, cond.Signal())
	require.NoError(t, l.Unlock())

	select {
	case ok := <-resumedHoldingLock:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("awaiting goroutine never resumed")
	}
}
