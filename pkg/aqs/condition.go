package aqs

import (
	"context"
	"fmt"
	"time"

	"github.com/nbtaylor/concurrent/internal/xerrors"
)

// ConditionObject implements a single condition queue (wait-set) for a
// Sync engine: a FIFO list of nodes with status statusCondition that
// migrate onto the main sync queue when signalled. A lock's
// NewCondition() returns one of these to the caller, already bound to
// that lock's Sync, so a ConditionObject can never be awaited against
// any synchronizer other than the one that created it — the "condition
// belongs to the wrong lock" argument error from the spec is therefore
// prevented by construction rather than a runtime check.
type ConditionObject struct {
	sync                   *Sync
	firstWaiter, lastWaiter *node
}

// NewCondition returns a new condition queue bound to s. s's Ops must
// represent an exclusive lock; awaiting requires the calling goroutine
// to already hold it.
func (s *Sync) NewCondition() *ConditionObject {
	return &ConditionObject{sync: s}
}

func (c *ConditionObject) addConditionWaiter() (*node, error) {
	if !c.sync.ops.IsHeldExclusively() {
		return nil, fmt.Errorf("%w: await without holding the lock", xerrors.ErrMonitorState)
	}
	t := c.lastWaiter
	if t != nil && t.loadStatus() != statusCondition {
		c.unlinkCancelledWaiters()
		t = c.lastWaiter
	}
	n := newNode(CurrentG(), modeExclusive)
	n.storeStatus(statusCondition)
	if t == nil {
		c.firstWaiter = n
	} else {
		t.nextWaiter = n
	}
	c.lastWaiter = n
	return n, nil
}

// unlinkCancelledWaiters sweeps the condition list for nodes that left
// statusCondition without being signalled (i.e. were cancelled), so the
// list doesn't grow unboundedly under repeated timed-out awaits.
func (c *ConditionObject) unlinkCancelledWaiters() {
	var trail *node
	for t := c.firstWaiter; t != nil; {
		next := t.nextWaiter
		if t.loadStatus() != statusCondition {
			t.nextWaiter = nil
			if trail == nil {
				c.firstWaiter = next
			} else {
				trail.nextWaiter = next
			}
			if next == nil {
				c.lastWaiter = trail
			}
		} else {
			trail = t
		}
		t = next
	}
}

func (c *ConditionObject) doSignal(first *node) {
	for first != nil {
		next := first.nextWaiter
		c.firstWaiter = next
		if next == nil {
			c.lastWaiter = nil
		}
		first.nextWaiter = nil
		if c.sync.transferForSignal(first) {
			return
		}
		first = c.firstWaiter
	}
}

// Signal wakes the longest-waiting goroutine on this condition, moving
// it from the condition list onto the main sync queue in FIFO order.
func (c *ConditionObject) Signal() error {
	if !c.sync.ops.IsHeldExclusively() {
		return fmt.Errorf("%w: signal without holding the lock", xerrors.ErrMonitorState)
	}
	if first := c.firstWaiter; first != nil {
		c.doSignal(first)
	}
	return nil
}

// SignalAll wakes every goroutine waiting on this condition, in FIFO
// order.
func (c *ConditionObject) SignalAll() error {
	if !c.sync.ops.IsHeldExclusively() {
		return fmt.Errorf("%w: signal without holding the lock", xerrors.ErrMonitorState)
	}
	first := c.firstWaiter
	c.firstWaiter, c.lastWaiter = nil, nil
	for first != nil {
		next := first.nextWaiter
		first.nextWaiter = nil
		c.sync.transferForSignal(first)
		first = next
	}
	return nil
}

// Await releases the lock (fully — all reentrant holds), blocks until
// signalled, cancelled via ctx, or spuriously woken, and reacquires the
// lock (restoring the saved hold count) before returning. If ctx is
// cancelled during the wait, the interrupt is surfaced after the lock
// has been reacquired, wrapping xerrors.ErrInterrupted.
func (c *ConditionObject) Await(ctx context.Context) error {
	n, err := c.addConditionWaiter()
	if err != nil {
		return err
	}
	saved, err := c.sync.fullyRelease(n)
	if err != nil {
		return err
	}

	interrupted := false
waitLoop:
	for !c.sync.isOnSyncQueue(n) {
		select {
		case <-n.permit:
		case <-ctx.Done():
			c.sync.transferAfterCancelledWait(n)
			interrupted = true
			break waitLoop
		}
	}

	_, _ = c.sync.acquireQueued(n, saved, context.Background(), false, time.Time{})
	if n.nextWaiter != nil {
		c.unlinkCancelledWaiters()
	}
	if interrupted {
		return fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	return nil
}

// AwaitNanos is the bounded-wait variant: it returns the time remaining
// until d would have elapsed (<=0 meaning the wait timed out before
// being signalled).
func (c *ConditionObject) AwaitNanos(ctx context.Context, d time.Duration) (time.Duration, error) {
	n, err := c.addConditionWaiter()
	if err != nil {
		return 0, err
	}
	saved, err := c.sync.fullyRelease(n)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(d)
	interrupted := false
waitLoop:
	for !c.sync.isOnSyncQueue(n) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.sync.transferAfterCancelledWait(n)
			break waitLoop
		}
		timer := time.NewTimer(remaining)
		select {
		case <-n.permit:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			c.sync.transferAfterCancelledWait(n)
			interrupted = true
			break waitLoop
		case <-timer.C:
		}
	}

	_, _ = c.sync.acquireQueued(n, saved, context.Background(), false, time.Time{})
	if n.nextWaiter != nil {
		c.unlinkCancelledWaiters()
	}
	remaining := time.Until(deadline)
	if interrupted {
		return remaining, fmt.Errorf("%w: %v", xerrors.ErrInterrupted, ctx.Err())
	}
	return remaining, nil
}

// HasWaiters reports whether any goroutine is currently awaiting this
// condition. Requires the caller to hold the associated lock.
func (c *ConditionObject) HasWaiters() bool {
	for n := c.firstWaiter; n != nil; n = n.nextWaiter {
		if n.loadStatus() == statusCondition {
			return true
		}
	}
	return false
}

// WaitQueueLength estimates the number of goroutines currently awaiting
// this condition.
func (c *ConditionObject) WaitQueueLength() int {
	count := 0
	for n := c.firstWaiter; n != nil; n = n.nextWaiter {
		if n.loadStatus() == statusCondition {
			count++
		}
	}
	return count
}
