// Package xerrors defines the sentinel error kinds shared by every
// collection in this module. Callers match them with errors.Is, the same
// way the rest of the pack matches sentinel errors rather than comparing
// strings.
package xerrors

import "errors"

var (
	// ErrInvalidArgument: a nil key, value or element. Constructors do
	// not return it: a non-positive queue/deque capacity or map
	// concurrency level is replaced by 1, and the map's load factor is
	// not checked. A condition cannot be awaited on a foreign lock, since
	// each ConditionObject is bound to its own lock's engine.
	ErrInvalidArgument = errors.New("concurrent: invalid argument")

	// ErrMonitorState: unlock by a non-owner, release without a held
	// count, await/signal without holding the associated lock, or a
	// reader releasing more holds than it took.
	ErrMonitorState = errors.New("concurrent: illegal monitor state")

	// ErrInterrupted: the calling goroutine's context was cancelled
	// before or during a blocking operation.
	ErrInterrupted = errors.New("concurrent: interrupted")

	// ErrTimeout: a bounded wait reached its deadline.
	ErrTimeout = errors.New("concurrent: timed out")

	// ErrNoSuchElement: Element/First/Last/Next on an empty collection
	// or exhausted iterator.
	ErrNoSuchElement = errors.New("concurrent: no such element")

	// ErrIllegalState: a hold-count overflow on ReentrantLock or on the
	// write side of ReentrantReadWriteLock. The queues have no throwing
	// Add (Offer reports a full queue with false), and a read-lock
	// acquire at the reader-count limit fails or waits instead of
	// returning this.
	ErrIllegalState = errors.New("concurrent: illegal state")

	// ErrIndexOutOfBounds: a list index operation outside [0, size).
	ErrIndexOutOfBounds = errors.New("concurrent: index out of bounds")

	// ErrConcurrentModification: a sublist observed that its parent's
	// backing array changed beneath it.
	ErrConcurrentModification = errors.New("concurrent: concurrent modification")
)

// Is reports whether err wraps target per errors.Is. Exported as a
// shorthand so callers don't need to import the stdlib errors package
// just to check a sentinel from this one.
func Is(err, target error) bool { return errors.Is(err, target) }
