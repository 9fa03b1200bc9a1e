package lock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbtaylor/concurrent/pkg/lock"
)

func TestReadWriteLock_MultipleReadersConcurrent(t *testing.T) {
	rw := lock.NewReadWriteLock(false)

	require.NoError(t, rw.ReadLock().Lock())
	require.NoError(t, rw.ReadLock().Lock())
	assert.Equal(t, int64(2), rw.ReadLockCount())

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, rw.ReadLock().Lock())
		close(acquired)
		_ = rw.ReadLock().Unlock()
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("concurrent reader never acquired read lock")
	}

	require.NoError(t, rw.ReadLock().Unlock())
	require.NoError(t, rw.ReadLock().Unlock())
}

func TestReadWriteLock_WriterExcludesReaders(t *testing.T) {
	rw := lock.NewReadWriteLock(false)
	require.NoError(t, rw.WriteLock().Lock())

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, rw.ReadLock().Lock())
		close(acquired)
		_ = rw.ReadLock().Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired read lock while writer held it")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, rw.WriteLock().Unlock())
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired read lock after writer released")
	}
}

func TestReadWriteLock_WriterExcludesWriters(t *testing.T) {
	rw := lock.NewReadWriteLock(false)
	require.NoError(t, rw.WriteLock().Lock())

	var order []string
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		require.NoError(t, rw.WriteLock().Lock())
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		_ = rw.WriteLock().Unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	require.NoError(t, rw.WriteLock().Unlock())
	<-done

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestReadWriteLock_WriterCanDowngradeToReader(t *testing.T) {
	rw := lock.NewReadWriteLock(true)
	require.NoError(t, rw.WriteLock().Lock())
	// A writer acquiring the read lock must never block on itself, even
	// in fair mode with other goroutines queued behind it.
	require.NoError(t, rw.ReadLock().Lock())
	assert.True(t, rw.WriteLockedByCurrentThread())
	require.NoError(t, rw.ReadLock().Unlock())
	require.NoError(t, rw.WriteLock().Unlock())
}

func TestReadWriteLock_ReadUnlockByNonHolderFails(t *testing.T) {
	rw := lock.NewReadWriteLock(false)
	err := rw.ReadLock().Unlock()
	assert.Error(t, err)
}
