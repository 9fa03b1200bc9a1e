// Package aqs implements a generic, FIFO-queued synchronizer: a
// pluggable template for blocking, thread-ordered acquisition of an
// abstract resource guarded by a single int32 state word. It is the
// engine that ReentrantLock, ReentrantReadWriteLock and their condition
// queues are built on (see package lock), and is not meant to be used
// directly by application code.
//
// A subclass supplies four primitive predicates via the Ops interface:
// TryAcquire, TryRelease, TryAcquireShared, TryReleaseShared, plus
// IsHeldExclusively. All queue mechanics — enqueue, park/unpark,
// cancellation, propagation — live here.
package aqs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nbtaylor/concurrent/internal/ilog"
	"github.com/nbtaylor/concurrent/internal/xerrors"
)

// Ops is the set of primitive predicates a concrete synchronizer
// (ReentrantLock, ReentrantReadWriteLock, ...) must implement. arg is an
// opaque integer the caller of Acquire/Release chooses the meaning of
// (hold count, reader/writer delta, permit count, ...).
type Ops interface {
	// TryAcquire attempts to set state to reflect an exclusive
	// acquisition for arg units; returns whether it succeeded.
	TryAcquire(arg int64) bool
	// TryRelease attempts to set state to reflect a full or partial
	// release of an exclusive hold of arg units; returns true if this
	// release fully frees the resource (so the head's successor, if
	// any, should be unparked).
	TryRelease(arg int64) bool
	// TryAcquireShared attempts a shared acquisition of arg units.
	// Negative return = failed; zero = succeeded, no further shared
	// acquires should be allowed to propagate; positive = succeeded,
	// and propagation to further shared waiters is permitted.
	TryAcquireShared(arg int64) int64
	// TryReleaseShared attempts a shared release of arg units; returns
	// true if this release may allow a waiting acquirer to succeed.
	TryReleaseShared(arg int64) bool
	// IsHeldExclusively reports whether the synchronizer is currently
	// held in exclusive mode by the calling goroutine.
	IsHeldExclusively() bool
}

// Sync is the queued-synchronizer engine itself.
type Sync struct {
	state int32 // atomic; subclass-defined interpretation.
	head  atomic.Pointer[node]
	tail  atomic.Pointer[node]
	ops   Ops
	log   ilog.Logger

	contended atomic.Bool // has_contended: true once any goroutine has ever blocked.
}

// New returns a synchronizer engine delegating its four acquire/release
// predicates to ops.
func New(ops Ops) *Sync {
	return &Sync{ops: ops, log: ilog.Discard{}}
}

// SetLogger installs a structured logger used for Debug-level diagnostics
// (contention, cancellation). New installs a no-op logger, so nothing is
// logged until this is called.
func (s *Sync) SetLogger(l ilog.Logger) { s.log = l }

// GetState, SetState and CompareAndSetState expose the raw state word to
// the Ops implementation; this is the only channel through which a
// subclass may read or mutate it. GetState zero-extends the underlying
// int32 rather than sign-extending it: subclasses like
// ReentrantReadWriteLock pack unsigned bit-fields (reader/writer counts)
// into the word and right-shift the int64 result, which would corrupt
// the high bit-field once the sign bit of the int32 is set if this
// sign-extended instead.
func (s *Sync) GetState() int64 { return int64(uint32(atomic.LoadInt32(&s.state))) }

func (s *Sync) SetState(v int64) { atomic.StoreInt32(&s.state, int32(v)) }

func (s *Sync) CompareAndSetState(old, new int64) bool {
	return atomic.CompareAndSwapInt32(&s.state, int32(old), int32(new))
}

// ---- enqueue ----

// enq appends n to the tail of the wait queue, lazily creating the
// sentinel head on first contention, and returns n's predecessor.
func (s *Sync) enq(n *node) *node {
	for {
		t := s.tail.Load()
		if t == nil {
			// Lazily initialise: a sentinel head carries no goroutine.
			h := &node{}
			if s.head.CompareAndSwap(nil, h) {
				s.tail.Store(h)
			}
			continue
		}
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return t
		}
	}
}

// addWaiter enqueues a new node for the current goroutine in mode m and
// returns it.
func (s *Sync) addWaiter(m mode) *node {
	n := newNode(CurrentG(), m)
	// Fast path: try to append directly onto an already-initialised tail.
	t := s.tail.Load()
	if t != nil {
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return n
		}
	}
	s.enq(n)
	return n
}

func (s *Sync) setHead(n *node) {
	s.head.Store(n)
	n.waiter = 0
	n.prev.Store(nil)
}

// unparkSuccessor wakes n's successor, skipping over any that have been
// cancelled, scanning back-to-front from the tail if the forward next
// link hasn't been published yet (mirrors the defensive traversal the
// spec calls for).
func (s *Sync) unparkSuccessor(n *node) {
	st := n.loadStatus()
	if st < 0 {
		n.casStatus(st, statusZero)
	}
	succ := n.next.Load()
	if succ == nil || succ.loadStatus() > 0 {
		succ = nil
		for p := s.tail.Load(); p != nil && p != n; p = p.prev.Load() {
			if p.loadStatus() <= 0 {
				succ = p
			}
		}
	}
	if succ != nil {
		succ.unpark()
	}
}

// ---- exclusive acquire ----

// Acquire acquires in exclusive mode, ignoring cancellation, blocking
// until it succeeds. This mirrors acquire(arg) in the spec: not
// interruptible.
func (s *Sync) Acquire(arg int64) {
	if !s.ops.TryAcquire(arg) {
		_, _ = s.acquireQueued(s.addWaiter(modeExclusive), arg, context.Background(), false, time.Time{})
	}
}

// AcquireCtx acquires in exclusive mode, returning xerrors.ErrInterrupted
// if ctx is done before or during the wait.
func (s *Sync) AcquireCtx(ctx context.Context, arg int64) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	if s.ops.TryAcquire(arg) {
		return nil
	}
	interrupted, _ := s.acquireQueued(s.addWaiter(modeExclusive), arg, ctx, false, time.Time{})
	if interrupted {
		return fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	return nil
}

// TryAcquireNanos attempts exclusive acquisition, giving up after
// timeout elapses. Returns (true, nil) on success, (false,
// xerrors.ErrTimeout) if the deadline is reached first, or an error if
// ctx is cancelled first.
func (s *Sync) TryAcquireNanos(ctx context.Context, arg int64, timeout time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	if s.ops.TryAcquire(arg) {
		return true, nil
	}
	if timeout <= 0 {
		return false, fmt.Errorf("%w: timeout <= 0 with lock unavailable", xerrors.ErrTimeout)
	}
	deadline := time.Now().Add(timeout)
	interrupted, timedOut := s.acquireQueued(s.addWaiter(modeExclusive), arg, ctx, true, deadline)
	if interrupted {
		return false, fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	if timedOut {
		return false, fmt.Errorf("%w: deadline reached awaiting exclusive acquire", xerrors.ErrTimeout)
	}
	return true, nil
}

// acquireQueued runs the main acquire loop for an already-enqueued node.
// It returns whether the wait ended due to ctx cancellation and whether
// it ended due to timeout (only meaningful if timed).
func (s *Sync) acquireQueued(n *node, arg int64, ctx context.Context, timed bool, deadline time.Time) (interrupted, timedOut bool) {
	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(n)
		}
	}()

	for {
		pred := n.prev.Load()
		if pred == s.head.Load() && s.ops.TryAcquire(arg) {
			s.setHead(n)
			pred.next.Store(nil)
			failed = false
			return false, false
		}
		if timed {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false, true
			}
			if s.shouldParkAfterFailedAcquire(pred, n) {
				if s.parkTimed(n, ctx, remaining) {
					return true, false
				}
			}
		} else {
			if s.shouldParkAfterFailedAcquire(pred, n) {
				if s.park(n, ctx) {
					return true, false
				}
			}
		}
	}
}

// shouldParkAfterFailedAcquire decides whether the caller should park
// given the node's current predecessor, mutating predecessor status (or
// unlinking cancelled predecessors) as needed. Mirrors the spec's
// enqueue/acquire-loop protocol exactly.
func (s *Sync) shouldParkAfterFailedAcquire(pred, n *node) bool {
	st := pred.loadStatus()
	if st == statusSignal {
		return true
	}
	if st > 0 {
		// Predecessor cancelled; skip it and retry against its
		// predecessor instead of parking yet.
		for pred.loadStatus() > 0 {
			pred = pred.prev.Load()
			n.prev.Store(pred)
		}
		pred.next.Store(n)
		return false
	}
	// st is 0 or statusPropagate: ask predecessor to signal us.
	pred.casStatus(st, statusSignal)
	return false
}

// park blocks the calling goroutine until unparked, ctx is cancelled, or
// a spurious wakeup occurs (in which case the caller re-enters its
// acquire loop, exactly as a spurious OS wakeup would). Returns whether
// ctx cancellation ended the wait.
func (s *Sync) park(n *node, ctx context.Context) bool {
	if !s.contended.Swap(true) {
		s.log.Debug("synchronizer contended: first goroutine parked")
	}
	select {
	case <-n.permit:
		return false
	case <-ctx.Done():
		s.log.WithField("mode", n.mode).Debug("synchronizer wait cancelled")
		return true
	}
}

func (s *Sync) parkTimed(n *node, ctx context.Context, d time.Duration) bool {
	if !s.contended.Swap(true) {
		s.log.Debug("synchronizer contended: first goroutine parked")
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-n.permit:
		return false
	case <-ctx.Done():
		s.log.WithField("mode", n.mode).Debug("synchronizer timed wait cancelled")
		return true
	case <-timer.C:
		s.log.WithField("waited", d).Debug("synchronizer timed wait deadline reached")
		return false
	}
}

// cancelAcquire marks n cancelled and unlinks it as cleanly as possible:
// skip cancelled predecessors, then either hand off the signal
// obligation to the successor or wake it directly.
func (s *Sync) cancelAcquire(n *node) {
	if n == nil {
		return
	}
	n.waiter = 0

	pred := n.prev.Load()
	for pred != nil && pred.loadStatus() > 0 {
		pred = pred.prev.Load()
	}
	predNext := pred.next.Load()

	n.storeStatus(statusCancelled)

	if n == s.tail.Load() && s.tail.CompareAndSwap(n, pred) {
		pred.next.CompareAndSwap(predNext, nil)
		return
	}
	if pred != s.head.Load() &&
		(pred.loadStatus() == statusSignal || pred.casStatus(statusZero, statusSignal)) &&
		pred.waiter != 0 {
		pred.next.CompareAndSwap(predNext, n.next.Load())
	} else {
		s.unparkSuccessor(n)
	}
	n.next.Store(n) // help GC; also a well-known "help unlinking" self-loop marker.
}

// ---- exclusive release ----

// Release releases in exclusive mode, unparking the head's successor
// once TryRelease reports the resource fully freed. A partial release
// (one of several reentrant holds) returns nil without waking anyone.
// TryRelease has no way to reject a call, so the ownership check that
// reports xerrors.ErrMonitorState belongs to the caller (as in
// ReentrantLock.Unlock).
func (s *Sync) Release(arg int64) error {
	if s.ops.TryRelease(arg) {
		h := s.head.Load()
		if h != nil && h.loadStatus() != statusZero {
			s.unparkSuccessor(h)
		}
	}
	return nil
}

// ---- shared acquire/release ----

func (s *Sync) AcquireShared(arg int64) {
	if s.ops.TryAcquireShared(arg) < 0 {
		s.doAcquireShared(arg, context.Background(), false, time.Time{})
	}
}

func (s *Sync) AcquireSharedCtx(ctx context.Context, arg int64) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	if s.ops.TryAcquireShared(arg) >= 0 {
		return nil
	}
	interrupted, _ := s.doAcquireShared(arg, ctx, false, time.Time{})
	if interrupted {
		return fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	return nil
}

// TryAcquireSharedNanos attempts shared acquisition, giving up after
// timeout elapses. Returns (true, nil) on success, (false,
// xerrors.ErrTimeout) if the deadline is reached first, or an error if
// ctx is cancelled first.
func (s *Sync) TryAcquireSharedNanos(ctx context.Context, arg int64, timeout time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	if s.ops.TryAcquireShared(arg) >= 0 {
		return true, nil
	}
	if timeout <= 0 {
		return false, fmt.Errorf("%w: timeout <= 0 with lock unavailable", xerrors.ErrTimeout)
	}
	deadline := time.Now().Add(timeout)
	interrupted, timedOut := s.doAcquireShared(arg, ctx, true, deadline)
	if interrupted {
		return false, fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	if timedOut {
		return false, fmt.Errorf("%w: deadline reached awaiting shared acquire", xerrors.ErrTimeout)
	}
	return true, nil
}

func (s *Sync) doAcquireShared(arg int64, ctx context.Context, timed bool, deadline time.Time) (interrupted, timedOut bool) {
	n := s.addWaiter(modeShared)
	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(n)
		}
	}()

	for {
		pred := n.prev.Load()
		if pred == s.head.Load() {
			r := s.ops.TryAcquireShared(arg)
			if r >= 0 {
				s.setHeadAndPropagate(n, r)
				pred.next.Store(nil)
				failed = false
				return false, false
			}
		}
		if timed {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false, true
			}
			if s.shouldParkAfterFailedAcquire(pred, n) {
				if s.parkTimed(n, ctx, remaining) {
					return true, false
				}
			}
		} else {
			if s.shouldParkAfterFailedAcquire(pred, n) {
				if s.park(n, ctx) {
					return true, false
				}
			}
		}
	}
}

// setHeadAndPropagate sets n as the new head and, if further shared
// acquisitions should propagate (propagate > 0, or the old head/new
// head asked for it), unparks the next shared waiter too.
func (s *Sync) setHeadAndPropagate(n *node, propagate int64) {
	oldHead := s.head.Load()
	s.setHead(n)
	if propagate > 0 || oldHead == nil || oldHead.loadStatus() < 0 {
		succ := n.next.Load()
		if succ == nil || succ.mode == modeShared {
			s.doReleaseShared()
		}
	}
}

// ReleaseShared releases in shared mode, propagating a wakeup to the
// next shared waiter if TryReleaseShared reports the resource may now
// be available. A release that leaves other shared holds in place
// returns nil; the per-holder check belongs to the caller (as in
// ReadLock.Unlock).
func (s *Sync) ReleaseShared(arg int64) error {
	if s.ops.TryReleaseShared(arg) {
		s.doReleaseShared()
	}
	return nil
}

func (s *Sync) doReleaseShared() {
	for {
		h := s.head.Load()
		if h != nil && h != s.tail.Load() {
			st := h.loadStatus()
			if st == statusSignal {
				if !h.casStatus(statusSignal, statusZero) {
					continue
				}
				s.unparkSuccessor(h)
			} else if st == statusZero && !h.casStatus(statusZero, statusPropagate) {
				continue
			}
		}
		if h == s.head.Load() {
			return
		}
	}
}

// HasQueuedPredecessors reports whether a non-cancelled predecessor of
// the current goroutine's position exists; fair Ops implementations
// consult this before attempting a barge.
func (s *Sync) HasQueuedPredecessors() bool {
	t := s.tail.Load()
	h := s.head.Load()
	if h == t {
		return false
	}
	first := h.next.Load()
	if first == nil || first.loadStatus() > 0 {
		// next link not yet published, or the first node is cancelled:
		// scan back from the tail for the earliest non-cancelled node.
		first = nil
		for p := t; p != nil && p != h; p = p.prev.Load() {
			if p.loadStatus() <= 0 {
				first = p
			}
		}
	}
	return first != nil && first.waiter != CurrentG()
}
