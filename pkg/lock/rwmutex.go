package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbtaylor/concurrent/internal/ilog"
	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/aqs"
)

const (
	sharedShift = 16
	sharedUnit  = int64(1) << sharedShift
	maxCount    = (int64(1) << sharedShift) - 1
	exclusiveMask = (int64(1) << sharedShift) - 1
)

func exclusiveCount(c int64) int64 { return c & exclusiveMask }
func sharedCount(c int64) int64    { return c >> sharedShift }

// rwSync is the shared aqs.Ops implementation backing both the read
// and write sides of a ReentrantReadWriteLock: the upper 16 bits of the
// engine's state count outstanding read holds, the lower 16 bits count
// nested write holds (state != 0 in the low bits implies an owner).
//
// Per-goroutine read-hold counts (needed for reentrancy and to reject a
// release that exceeds what was held) live in holds, guarded by holdMu,
// standing in for the thread-local storage the spec calls for — Go has
// no public TLS, and a goroutine-keyed map is the idiomatic substitute.
// The firstReader/cachedHoldCounter fast-path the original keeps to
// avoid a map lookup on the common single-reader case is dropped here:
// it is a throughput nicety, not a correctness requirement, and the
// plain map keeps this port considerably simpler.
type rwSync struct {
	s    *aqs.Sync
	fair bool

	writerOwner atomic.Uint64 // aqs.G; 0 == no writer

	holdMu sync.Mutex
	holds  map[aqs.G]int64
}

func newRWSync(fair bool) *rwSync {
	rw := &rwSync{fair: fair, holds: make(map[aqs.G]int64)}
	rw.s = aqs.New(rw)
	return rw
}

func (rw *rwSync) readerHold(g aqs.G) int64 {
	rw.holdMu.Lock()
	defer rw.holdMu.Unlock()
	return rw.holds[g]
}

func (rw *rwSync) incReaderHold(g aqs.G) {
	rw.holdMu.Lock()
	defer rw.holdMu.Unlock()
	rw.holds[g]++
}

func (rw *rwSync) decReaderHold(g aqs.G) error {
	rw.holdMu.Lock()
	defer rw.holdMu.Unlock()
	v := rw.holds[g]
	if v <= 0 {
		return fmt.Errorf("%w: read lock released more times than held", xerrors.ErrMonitorState)
	}
	if v == 1 {
		delete(rw.holds, g)
	} else {
		rw.holds[g] = v - 1
	}
	return nil
}

func (rw *rwSync) writerShouldBlock() bool {
	return rw.fair && rw.s.HasQueuedPredecessors()
}

func (rw *rwSync) readerShouldBlock() bool {
	// A goroutine downgrading from the write lock must never be made
	// to queue behind other waiters: it already serialises everything.
	if aqs.G(rw.writerOwner.Load()) == aqs.CurrentG() {
		return false
	}
	return rw.fair && rw.s.HasQueuedPredecessors()
}

// ---- exclusive (write) side ----

func (rw *rwSync) TryAcquire(arg int64) bool {
	current := aqs.CurrentG()
	c := rw.s.GetState()
	w := exclusiveCount(c)
	if c != 0 {
		if w == 0 || aqs.G(rw.writerOwner.Load()) != current {
			return false
		}
		// Reentrant: only the owning goroutine reaches here, so a
		// plain read-modify-write is race-free.
		rw.s.SetState(c + arg)
		return true
	}
	if rw.writerShouldBlock() {
		return false
	}
	if !rw.s.CompareAndSetState(c, c+arg) {
		return false
	}
	rw.writerOwner.Store(uint64(current))
	return true
}

func (rw *rwSync) TryRelease(arg int64) bool {
	nextc := rw.s.GetState() - arg
	free := exclusiveCount(nextc) == 0
	if free {
		rw.writerOwner.Store(0)
	}
	rw.s.SetState(nextc)
	return free
}

// ---- shared (read) side ----

func (rw *rwSync) TryAcquireShared(arg int64) int64 {
	current := aqs.CurrentG()
	c := rw.s.GetState()
	if exclusiveCount(c) != 0 && aqs.G(rw.writerOwner.Load()) != current {
		return -1
	}
	r := sharedCount(c)
	if !rw.readerShouldBlock() && r < maxCount {
		if rw.s.CompareAndSetState(c, c+sharedUnit) {
			rw.incReaderHold(current)
			return 1
		}
	}
	return rw.fullTryAcquireShared(current)
}

func (rw *rwSync) fullTryAcquireShared(current aqs.G) int64 {
	for {
		c := rw.s.GetState()
		w := exclusiveCount(c)
		if w != 0 {
			if aqs.G(rw.writerOwner.Load()) != current {
				return -1
			}
		} else if rw.readerShouldBlock() && rw.readerHold(current) == 0 {
			return -1
		}
		if sharedCount(c) >= maxCount {
			return -1
		}
		if rw.s.CompareAndSetState(c, c+sharedUnit) {
			rw.incReaderHold(current)
			return 1
		}
	}
}

func (rw *rwSync) TryReleaseShared(arg int64) bool {
	for {
		c := rw.s.GetState()
		nextc := c - sharedUnit
		if rw.s.CompareAndSetState(c, nextc) {
			return sharedCount(nextc) == 0
		}
	}
}

func (rw *rwSync) IsHeldExclusively() bool {
	return aqs.G(rw.writerOwner.Load()) == aqs.CurrentG() && exclusiveCount(rw.s.GetState()) > 0
}

// ReentrantReadWriteLock pairs a shared read lock with an exclusive
// write lock over the same state: any number of readers may hold it
// concurrently as long as no writer does, and at most one writer may
// hold it, excluding all readers. A goroutine holding the write lock
// may additionally acquire the read lock (downgrade); the reverse
// (read-to-write upgrade) is not supported and will deadlock, per the
// spec's contract.
type ReentrantReadWriteLock struct {
	rw *rwSync
	r  *ReadLock
	w  *WriteLock
}

// NewReadWriteLock returns a ReentrantReadWriteLock.
func NewReadWriteLock(fair bool) *ReentrantReadWriteLock {
	rw := newRWSync(fair)
	l := &ReentrantReadWriteLock{rw: rw}
	l.r = &ReadLock{rw: rw}
	l.w = &WriteLock{rw: rw}
	return l
}

// WithLogger installs a logger used for Debug-level diagnostics.
func (l *ReentrantReadWriteLock) WithLogger(lg ilog.Logger) *ReentrantReadWriteLock {
	l.rw.s.SetLogger(lg)
	return l
}

// ReadLock returns the shared-mode lock.
func (l *ReentrantReadWriteLock) ReadLock() *ReadLock { return l.r }

// WriteLock returns the exclusive-mode lock.
func (l *ReentrantReadWriteLock) WriteLock() *WriteLock { return l.w }

// IsFair reports whether this lock was constructed in fair mode.
func (l *ReentrantReadWriteLock) IsFair() bool { return l.rw.fair }

// ReadLockCount reports the number of active read holds.
func (l *ReentrantReadWriteLock) ReadLockCount() int64 { return sharedCount(l.rw.s.GetState()) }

// WriteLockedByCurrentThread reports whether the calling goroutine
// holds the write lock.
func (l *ReentrantReadWriteLock) WriteLockedByCurrentThread() bool { return l.rw.IsHeldExclusively() }

// WriteHoldCount returns the calling goroutine's nested write-hold
// count (0 if it holds none).
func (l *ReentrantReadWriteLock) WriteHoldCount() int64 {
	if !l.rw.IsHeldExclusively() {
		return 0
	}
	return exclusiveCount(l.rw.s.GetState())
}

// ReadHoldCount returns the calling goroutine's nested read-hold count.
func (l *ReentrantReadWriteLock) ReadHoldCount() int64 { return l.rw.readerHold(aqs.CurrentG()) }

// WriteLock is the exclusive side of a ReentrantReadWriteLock.
type WriteLock struct{ rw *rwSync }

func (w *WriteLock) checkOverflow(arg int64) error {
	if aqs.G(w.rw.writerOwner.Load()) == aqs.CurrentG() && exclusiveCount(w.rw.s.GetState())+arg > maxCount {
		return fmt.Errorf("%w: write-lock hold count overflow", xerrors.ErrIllegalState)
	}
	return nil
}

func (w *WriteLock) Lock() error {
	if err := w.checkOverflow(1); err != nil {
		return err
	}
	w.rw.s.Acquire(1)
	return nil
}

func (w *WriteLock) LockCtx(ctx context.Context) error {
	if err := w.checkOverflow(1); err != nil {
		return err
	}
	return w.rw.s.AcquireCtx(ctx, 1)
}

func (w *WriteLock) TryLock() bool {
	current := aqs.CurrentG()
	c := w.rw.s.GetState()
	if c != 0 {
		if exclusiveCount(c) == 0 || aqs.G(w.rw.writerOwner.Load()) != current {
			return false
		}
		if exclusiveCount(c) >= maxCount {
			return false
		}
		w.rw.s.SetState(c + 1)
		return true
	}
	if !w.rw.s.CompareAndSetState(0, 1) {
		return false
	}
	w.rw.writerOwner.Store(uint64(current))
	return true
}

func (w *WriteLock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := w.checkOverflow(1); err != nil {
		return false, err
	}
	return w.rw.s.TryAcquireNanos(ctx, 1, timeout)
}

func (w *WriteLock) Unlock() error {
	if aqs.G(w.rw.writerOwner.Load()) != aqs.CurrentG() {
		return fmt.Errorf("%w: write-unlock by a goroutine that does not hold it", xerrors.ErrMonitorState)
	}
	return w.rw.s.Release(1)
}

// NewCondition returns a condition queue for this write lock. Only the
// write lock supports conditions — awaiting while holding only a read
// lock cannot be made safe, the same restriction the spec's original
// carries.
func (w *WriteLock) NewCondition() *aqs.ConditionObject { return w.rw.s.NewCondition() }

func (w *WriteLock) IsHeldByCurrentThread() bool { return w.rw.IsHeldExclusively() }

// ReadLock is the shared side of a ReentrantReadWriteLock.
type ReadLock struct{ rw *rwSync }

func (r *ReadLock) Lock() error {
	r.rw.s.AcquireShared(1)
	return nil
}

func (r *ReadLock) LockCtx(ctx context.Context) error {
	return r.rw.s.AcquireSharedCtx(ctx, 1)
}

func (r *ReadLock) TryLock() bool {
	current := aqs.CurrentG()
	c := r.rw.s.GetState()
	if exclusiveCount(c) != 0 && aqs.G(r.rw.writerOwner.Load()) != current {
		return false
	}
	if sharedCount(c) >= maxCount {
		return false
	}
	if r.rw.s.CompareAndSetState(c, c+sharedUnit) {
		r.rw.incReaderHold(current)
		return true
	}
	return r.rw.fullTryAcquireShared(current) >= 0
}

func (r *ReadLock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	return r.rw.s.TryAcquireSharedNanos(ctx, 1, timeout)
}

func (r *ReadLock) Unlock() error {
	g := aqs.CurrentG()
	if err := r.rw.decReaderHold(g); err != nil {
		return err
	}
	return r.rw.s.ReleaseShared(1)
}
