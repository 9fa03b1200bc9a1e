package aqs

import "fmt"
import "github.com/nbtaylor/concurrent/internal/xerrors"

// fullyRelease drops every held unit of the exclusive lock (however many
// reentrant holds are outstanding) so the goroutine can block on a
// condition, returning the saved state to restore on reacquisition.
func (s *Sync) fullyRelease(n *node) (saved int64, err error) {
	saved = s.GetState()
	if s.ops.TryRelease(saved) {
		if h := s.head.Load(); h != nil && h.loadStatus() != statusZero {
			s.unparkSuccessor(h)
		}
		return saved, nil
	}
	n.storeStatus(statusCancelled)
	return 0, fmt.Errorf("%w: await without holding the lock", xerrors.ErrMonitorState)
}

// isOnSyncQueue reports whether n has migrated from a condition's
// wait-list onto the main sync queue.
func (s *Sync) isOnSyncQueue(n *node) bool {
	if n.loadStatus() == statusCondition || n.prev.Load() == nil {
		return false
	}
	if n.next.Load() != nil {
		return true
	}
	return s.findNodeFromTail(n)
}

func (s *Sync) findNodeFromTail(n *node) bool {
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p == n {
			return true
		}
	}
	return false
}

// transferForSignal moves n from a condition's wait-list onto the main
// sync queue, arming it so its eventual predecessor will unpark it.
func (s *Sync) transferForSignal(n *node) bool {
	if !n.casStatus(statusCondition, statusZero) {
		return false
	}
	p := s.enq(n)
	st := p.loadStatus()
	if st > 0 || !p.casStatus(st, statusSignal) {
		n.unpark()
	}
	return true
}

// transferAfterCancelledWait handles the race between a condition-await
// being cancelled and a concurrent Signal: if we win the CAS, we
// transfer ourselves onto the sync queue and report that the wait ended
// via cancellation; otherwise a Signal already claimed us; spin until
// that transfer is visible, then report that the wait ended normally
// (the cancellation will still be surfaced by the caller once it has
// reacquired the lock).
func (s *Sync) transferAfterCancelledWait(n *node) bool {
	if n.casStatus(statusCondition, statusZero) {
		s.enq(n)
		return true
	}
	for !s.isOnSyncQueue(n) {
		// Thread.yield() equivalent: allow other goroutines to run
		// rather than raw-spin a single core.
		runtimeGosched()
	}
	return false
}
