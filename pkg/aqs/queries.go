package aqs

// The queries below are weakly consistent: each walks the queue without
// acquiring anything, so a concurrent enqueue/dequeue may be missed, but
// none will ever invent a goroutine that was never really waiting.

// HasQueuedThreads reports whether any goroutine is currently waiting to
// acquire.
func (s *Sync) HasQueuedThreads() bool {
	h := s.head.Load()
	t := s.tail.Load()
	return h != t
}

// HasContended reports whether any goroutine has ever blocked trying to
// acquire this synchronizer.
func (s *Sync) HasContended() bool { return s.contended.Load() }

// QueueLength estimates the number of goroutines waiting to acquire.
func (s *Sync) QueueLength() int {
	n := 0
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiter != 0 {
			n++
		}
	}
	return n
}

// QueuedThreads returns a weakly-consistent snapshot of every goroutine
// currently queued, in arbitrary order.
func (s *Sync) QueuedThreads() []G {
	var out []G
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiter != 0 {
			out = append(out, p.waiter)
		}
	}
	return out
}

// ExclusiveQueuedThreads returns the subset of QueuedThreads waiting in
// exclusive mode.
func (s *Sync) ExclusiveQueuedThreads() []G {
	var out []G
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiter != 0 && p.mode == modeExclusive {
			out = append(out, p.waiter)
		}
	}
	return out
}

// SharedQueuedThreads returns the subset of QueuedThreads waiting in
// shared mode.
func (s *Sync) SharedQueuedThreads() []G {
	var out []G
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiter != 0 && p.mode == modeShared {
			out = append(out, p.waiter)
		}
	}
	return out
}

// FirstQueuedThread returns the goroutine at the head of the queue, or
// (0, false) if the queue is empty. Weakly consistent: on a concurrent
// structural change it may fall back to a linear scan from the tail.
func (s *Sync) FirstQueuedThread() (G, bool) {
	h := s.head.Load()
	t := s.tail.Load()
	if h == t {
		return 0, false
	}
	if first := h.next.Load(); first != nil && first.waiter != 0 {
		return first.waiter, true
	}
	// Racing with an in-flight enqueue; fall back to a full scan.
	var found G
	ok := false
	for p := t; p != nil && p != h; p = p.prev.Load() {
		if p.waiter != 0 {
			found, ok = p.waiter, true
		}
	}
	return found, ok
}

// IsQueued reports whether g has a node currently in the wait queue.
func (s *Sync) IsQueued(g G) bool {
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiter == g {
			return true
		}
	}
	return false
}

// IsHeldExclusively delegates to the Ops implementation.
func (s *Sync) IsHeldExclusively() bool { return s.ops.IsHeldExclusively() }
