// Package lock implements reentrant exclusive and read/write locks on
// top of the queued-synchronizer engine in package aqs, plus the
// condition queues that hang off them.
package lock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nbtaylor/concurrent/internal/ilog"
	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/aqs"
)

const maxHoldCount = int64(1)<<31 - 1

// ReentrantLock is an exclusive mutual-exclusion lock with the same
// basic behaviour as a plain mutex, plus reentrancy: the goroutine that
// holds it may acquire it again without deadlocking itself, as long as
// it unlocks the same number of times.
type ReentrantLock struct {
	s     *aqs.Sync
	fair  bool
	owner atomic.Uint64 // aqs.G of the holder; 0 == unlocked
}

// NewReentrantLock returns a ReentrantLock. In fair mode, the
// longest-waiting goroutine acquires next; in non-fair mode an arriving
// goroutine may barge ahead of goroutines already queued (generally
// higher throughput, weaker ordering guarantees).
func NewReentrantLock(fair bool) *ReentrantLock {
	rl := &ReentrantLock{fair: fair}
	rl.s = aqs.New(rl)
	return rl
}

// WithLogger installs a logger used for Debug-level contention
// diagnostics.
func (l *ReentrantLock) WithLogger(lg ilog.Logger) *ReentrantLock {
	l.s.SetLogger(lg)
	return l
}

// TryAcquire implements aqs.Ops for non-fair and fair ReentrantLocks.
func (l *ReentrantLock) TryAcquire(arg int64) bool {
	g := aqs.CurrentG()
	c := l.s.GetState()
	if c == 0 {
		if l.fair && l.s.HasQueuedPredecessors() {
			return false
		}
		if l.s.CompareAndSetState(0, arg) {
			l.owner.Store(uint64(g))
			return true
		}
		return false
	}
	if aqs.G(l.owner.Load()) == g {
		// Only the owning goroutine can reach this branch concurrently
		// with itself, so a plain (non-CAS) read-modify-write is safe.
		l.s.SetState(c + arg)
		return true
	}
	return false
}

// TryRelease implements aqs.Ops. Callers must have already verified
// ownership (Unlock does, before ever calling into the engine), so a
// release here always succeeds.
func (l *ReentrantLock) TryRelease(arg int64) bool {
	c := l.s.GetState() - arg
	free := c == 0
	if free {
		l.owner.Store(0)
	}
	l.s.SetState(c)
	return free
}

// TryAcquireShared and TryReleaseShared are not meaningful for an
// exclusive lock and are never exercised by this package's callers.
func (l *ReentrantLock) TryAcquireShared(int64) int64 { return -1 }
func (l *ReentrantLock) TryReleaseShared(int64) bool  { return false }

// IsHeldExclusively implements aqs.Ops, and is also what condition
// queues use to enforce "await/signal requires the caller to hold the
// lock".
func (l *ReentrantLock) IsHeldExclusively() bool {
	return aqs.G(l.owner.Load()) == aqs.CurrentG() && l.s.GetState() > 0
}

// Lock acquires the lock, blocking uninterruptibly until it succeeds.
func (l *ReentrantLock) Lock() error {
	if err := l.checkOverflow(1); err != nil {
		return err
	}
	l.s.Acquire(1)
	return nil
}

// LockCtx acquires the lock, returning xerrors.ErrInterrupted if ctx is
// cancelled before or during the wait.
func (l *ReentrantLock) LockCtx(ctx context.Context) error {
	if err := l.checkOverflow(1); err != nil {
		return err
	}
	return l.s.AcquireCtx(ctx, 1)
}

// TryLock acquires the lock only if it is free (or already held by the
// calling goroutine) at the moment of the call, never blocking.
func (l *ReentrantLock) TryLock() bool {
	g := aqs.CurrentG()
	c := l.s.GetState()
	if c == 0 {
		if l.s.CompareAndSetState(0, 1) {
			l.owner.Store(uint64(g))
			return true
		}
		return false
	}
	if aqs.G(l.owner.Load()) == g {
		if c >= maxHoldCount {
			return false
		}
		l.s.SetState(c + 1)
		return true
	}
	return false
}

// TryLockTimeout attempts to acquire the lock, giving up after timeout
// elapses. The fair-vs-barging policy from Lock still applies.
func (l *ReentrantLock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := l.checkOverflow(1); err != nil {
		return false, err
	}
	return l.s.TryAcquireNanos(ctx, 1, timeout)
}

// Unlock releases one hold. It returns an error wrapping
// xerrors.ErrMonitorState if the calling goroutine does not currently
// hold the lock.
func (l *ReentrantLock) Unlock() error {
	if aqs.G(l.owner.Load()) != aqs.CurrentG() {
		return fmt.Errorf("%w: unlock by a goroutine that does not hold the lock", xerrors.ErrMonitorState)
	}
	return l.s.Release(1)
}

func (l *ReentrantLock) checkOverflow(arg int64) error {
	if aqs.G(l.owner.Load()) == aqs.CurrentG() && l.s.GetState()+arg > maxHoldCount {
		return fmt.Errorf("%w: lock hold count overflow", xerrors.ErrIllegalState)
	}
	return nil
}

// NewCondition returns a condition queue associated with this lock. The
// calling goroutine must hold the lock when calling Await/Signal on it.
func (l *ReentrantLock) NewCondition() *aqs.ConditionObject { return l.s.NewCondition() }

// IsLocked reports whether any goroutine currently holds the lock.
func (l *ReentrantLock) IsLocked() bool { return l.s.GetState() != 0 }

// IsHeldByCurrentThread reports whether the calling goroutine holds the
// lock.
func (l *ReentrantLock) IsHeldByCurrentThread() bool { return l.IsHeldExclusively() }

// HoldCount returns the number of reentrant holds the calling goroutine
// has on this lock (0 if it holds none).
func (l *ReentrantLock) HoldCount() int64 {
	if aqs.G(l.owner.Load()) != aqs.CurrentG() {
		return 0
	}
	return l.s.GetState()
}

// IsFair reports whether this lock was constructed in fair mode.
func (l *ReentrantLock) IsFair() bool { return l.fair }

// HasQueuedThreads reports whether any goroutine is waiting to acquire.
func (l *ReentrantLock) HasQueuedThreads() bool { return l.s.HasQueuedThreads() }

// QueueLength estimates the number of goroutines waiting to acquire.
func (l *ReentrantLock) QueueLength() int { return l.s.QueueLength() }

// HasQueuedThread reports whether g is waiting to acquire this lock.
func (l *ReentrantLock) HasQueuedThread(g aqs.G) bool { return l.s.IsQueued(g) }
