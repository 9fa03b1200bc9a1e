package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nbtaylor/concurrent/internal/ilog"
	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/aqs"
	"github.com/nbtaylor/concurrent/pkg/lock"
)

type dnode[T any] struct {
	item T
	prev *dnode[T]
	next *dnode[T]
}

// BlockingDeque is a bounded double-ended queue. Unlike BlockingQueue
// it uses a single lock for every operation: because either end can
// insert or remove, a two-lock split would need both locks held for
// most operations anyway, so one lock plus two conditions (notEmpty,
// notFull) is simpler and no less concurrent in practice.
type BlockingDeque[T any] struct {
	capacity int
	count    int

	first *dnode[T]
	last  *dnode[T]

	mu       *lock.ReentrantLock
	notEmpty *aqs.ConditionObject
	notFull  *aqs.ConditionObject

	log ilog.Logger
}

// NewBlockingDeque constructs a BlockingDeque with the given capacity.
// A capacity <= 0 is not rejected: it is replaced by 1.
func NewBlockingDeque[T any](capacity int) *BlockingDeque[T] {
	if capacity <= 0 {
		capacity = 1
	}
	d := &BlockingDeque[T]{
		capacity: capacity,
		mu:       lock.NewReentrantLock(false),
		log:      ilog.Discard{},
	}
	d.notEmpty = d.mu.NewCondition()
	d.notFull = d.mu.NewCondition()
	return d
}

// WithLogger installs a logger used for Debug-level backpressure
// diagnostics.
func (d *BlockingDeque[T]) WithLogger(lg ilog.Logger) *BlockingDeque[T] {
	d.log = lg
	return d
}

func (d *BlockingDeque[T]) linkFirst(item T) bool {
	if d.count >= d.capacity {
		return false
	}
	f := d.first
	n := &dnode[T]{item: item, next: f}
	d.first = n
	if f == nil {
		d.last = n
	} else {
		f.prev = n
	}
	d.count++
	_ = d.notEmpty.Signal()
	return true
}

func (d *BlockingDeque[T]) linkLast(item T) bool {
	if d.count >= d.capacity {
		return false
	}
	l := d.last
	n := &dnode[T]{item: item, prev: l}
	d.last = n
	if l == nil {
		d.first = n
	} else {
		l.next = n
	}
	d.count++
	_ = d.notEmpty.Signal()
	return true
}

func (d *BlockingDeque[T]) unlinkFirst() (T, bool) {
	var zero T
	f := d.first
	if f == nil {
		return zero, false
	}
	n := f.next
	x := f.item
	var z T
	f.item = z
	f.next = f
	d.first = n
	if n == nil {
		d.last = nil
	} else {
		n.prev = nil
	}
	d.count--
	_ = d.notFull.Signal()
	return x, true
}

// unlink removes an interior node. Callers must hold mu.
func (d *BlockingDeque[T]) unlink(n *dnode[T]) {
	p, q := n.prev, n.next
	if p == nil {
		d.unlinkFirstNode(n)
		return
	}
	if q == nil {
		d.unlinkLastNode(n)
		return
	}
	p.next = q
	q.prev = p
	n.prev, n.next = nil, nil
	d.count--
	_ = d.notFull.Signal()
}

func (d *BlockingDeque[T]) unlinkFirstNode(n *dnode[T]) {
	q := n.next
	d.first = q
	if q == nil {
		d.last = nil
	} else {
		q.prev = nil
	}
	n.next = nil
	d.count--
	_ = d.notFull.Signal()
}

func (d *BlockingDeque[T]) unlinkLastNode(n *dnode[T]) {
	p := n.prev
	d.last = p
	if p == nil {
		d.first = nil
	} else {
		p.next = nil
	}
	n.prev = nil
	d.count--
	_ = d.notFull.Signal()
}

func (d *BlockingDeque[T]) unlinkLast() (T, bool) {
	var zero T
	l := d.last
	if l == nil {
		return zero, false
	}
	p := l.prev
	x := l.item
	var z T
	l.item = z
	l.prev = l
	d.last = p
	if p == nil {
		d.first = nil
	} else {
		p.next = nil
	}
	d.count--
	_ = d.notFull.Signal()
	return x, true
}

// PutFirst inserts item at the head, blocking while full.
func (d *BlockingDeque[T]) PutFirst(ctx context.Context, item T) error {
	if isNilValue(item) {
		return fmt.Errorf("%w: nil item", xerrors.ErrInvalidArgument)
	}
	if err := d.mu.LockCtx(ctx); err != nil {
		return err
	}
	defer func() { _ = d.mu.Unlock() }()
	if d.count >= d.capacity {
		d.log.WithField("capacity", d.capacity).Debug("put_first blocked: deque full")
	}
	for !d.linkFirst(item) {
		if err := d.notFull.Await(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PutLast inserts item at the tail, blocking while full.
func (d *BlockingDeque[T]) PutLast(ctx context.Context, item T) error {
	if isNilValue(item) {
		return fmt.Errorf("%w: nil item", xerrors.ErrInvalidArgument)
	}
	if err := d.mu.LockCtx(ctx); err != nil {
		return err
	}
	defer func() { _ = d.mu.Unlock() }()
	for !d.linkLast(item) {
		if err := d.notFull.Await(ctx); err != nil {
			return err
		}
	}
	return nil
}

// OfferFirst inserts item at the head only if space is available.
func (d *BlockingDeque[T]) OfferFirst(item T) (bool, error) {
	if isNilValue(item) {
		return false, fmt.Errorf("%w: nil item", xerrors.ErrInvalidArgument)
	}
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	return d.linkFirst(item), nil
}

// OfferLast inserts item at the tail only if space is available.
func (d *BlockingDeque[T]) OfferLast(item T) (bool, error) {
	if isNilValue(item) {
		return false, fmt.Errorf("%w: nil item", xerrors.ErrInvalidArgument)
	}
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	return d.linkLast(item), nil
}

// TakeFirst removes and returns the head, blocking while empty.
func (d *BlockingDeque[T]) TakeFirst(ctx context.Context) (T, error) {
	var zero T
	if err := d.mu.LockCtx(ctx); err != nil {
		return zero, err
	}
	defer func() { _ = d.mu.Unlock() }()
	for {
		if x, ok := d.unlinkFirst(); ok {
			return x, nil
		}
		if err := d.notEmpty.Await(ctx); err != nil {
			return zero, err
		}
	}
}

// TakeLast removes and returns the tail, blocking while empty.
func (d *BlockingDeque[T]) TakeLast(ctx context.Context) (T, error) {
	var zero T
	if err := d.mu.LockCtx(ctx); err != nil {
		return zero, err
	}
	defer func() { _ = d.mu.Unlock() }()
	for {
		if x, ok := d.unlinkLast(); ok {
			return x, nil
		}
		if err := d.notEmpty.Await(ctx); err != nil {
			return zero, err
		}
	}
}

// PollFirst removes and returns the head if present, never blocking.
func (d *BlockingDeque[T]) PollFirst() (T, bool) {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	return d.unlinkFirst()
}

// PollLast removes and returns the tail if present, never blocking.
func (d *BlockingDeque[T]) PollLast() (T, bool) {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	return d.unlinkLast()
}

// PollFirstTimeout removes and returns the head, waiting up to timeout.
func (d *BlockingDeque[T]) PollFirstTimeout(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T
	if err := d.mu.LockCtx(ctx); err != nil {
		return zero, false, err
	}
	defer func() { _ = d.mu.Unlock() }()
	remaining := timeout
	for {
		if x, ok := d.unlinkFirst(); ok {
			return x, true, nil
		}
		if remaining <= 0 {
			return zero, false, fmt.Errorf("%w: deque still empty after %v", xerrors.ErrTimeout, timeout)
		}
		var err error
		remaining, err = d.notEmpty.AwaitNanos(ctx, remaining)
		if err != nil {
			return zero, false, err
		}
	}
}

// PeekFirst returns the head without removing it.
func (d *BlockingDeque[T]) PeekFirst() (T, bool) {
	var zero T
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	if d.first == nil {
		return zero, false
	}
	return d.first.item, true
}

// PeekLast returns the tail without removing it.
func (d *BlockingDeque[T]) PeekLast() (T, bool) {
	var zero T
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	if d.last == nil {
		return zero, false
	}
	return d.last.item, true
}

// GetFirst returns the head without removing it, like PeekFirst, but
// reports xerrors.ErrNoSuchElement instead of a bare false when the
// deque is empty.
func (d *BlockingDeque[T]) GetFirst() (T, error) {
	if v, ok := d.PeekFirst(); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: deque is empty", xerrors.ErrNoSuchElement)
}

// GetLast returns the tail without removing it, like PeekLast, but
// reports xerrors.ErrNoSuchElement instead of a bare false when the
// deque is empty.
func (d *BlockingDeque[T]) GetLast() (T, error) {
	if v, ok := d.PeekLast(); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: deque is empty", xerrors.ErrNoSuchElement)
}

// Size returns the number of elements currently held.
func (d *BlockingDeque[T]) Size() int {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	return d.count
}

// RemainingCapacity returns the number of additional elements the
// deque can accept without blocking.
func (d *BlockingDeque[T]) RemainingCapacity() int {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	return d.capacity - d.count
}

// RemoveFirstOccurrence removes the first (head-to-tail) element equal
// to target, reporting whether one was found.
func (d *BlockingDeque[T]) RemoveFirstOccurrence(target T, eq func(T, T) bool) bool {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	for n := d.first; n != nil; n = n.next {
		if eq(n.item, target) {
			d.unlink(n)
			return true
		}
	}
	return false
}

// RemoveLastOccurrence removes the last (tail-to-head) element equal to
// target, reporting whether one was found.
func (d *BlockingDeque[T]) RemoveLastOccurrence(target T, eq func(T, T) bool) bool {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	for n := d.last; n != nil; n = n.prev {
		if eq(n.item, target) {
			d.unlink(n)
			return true
		}
	}
	return false
}

// Clear removes every element. Unlike repeated TakeFirst, this signals
// notFull exactly once, with SignalAll: every waiting producer wakes and
// rechecks for space, so as many succeed as there are free slots and
// the rest re-block — there is no need to signal once per freed slot.
func (d *BlockingDeque[T]) Clear() {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	for n := d.first; n != nil; {
		next := n.next
		n.prev, n.next = nil, nil
		var zero T
		n.item = zero
		n = next
	}
	d.first, d.last = nil, nil
	if d.count > 0 {
		d.count = 0
		_ = d.notFull.SignalAll()
	}
}

// ToArray returns a snapshot of the deque's elements, head to tail.
func (d *BlockingDeque[T]) ToArray() []T {
	_ = d.mu.Lock()
	defer func() { _ = d.mu.Unlock() }()
	out := make([]T, 0, d.count)
	for n := d.first; n != nil; n = n.next {
		out = append(out, n.item)
	}
	return out
}

// Iterator walks the deque from head to tail over a frozen snapshot
// taken at construction time, so it is tolerant of concurrent interior
// removal: an Iterator never observes a structural change made after it
// was created.
type Iterator[T any] struct {
	items []T
	pos   int
}

// Iterator returns a forward (head-to-tail) iterator.
func (d *BlockingDeque[T]) Iterator() *Iterator[T] {
	return &Iterator[T]{items: d.ToArray()}
}

// DescendingIterator returns a tail-to-head iterator.
func (d *BlockingDeque[T]) DescendingIterator() *Iterator[T] {
	items := d.ToArray()
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return &Iterator[T]{items: items}
}

// HasNext reports whether Next has more elements to return.
func (it *Iterator[T]) HasNext() bool { return it.pos < len(it.items) }

// Next returns the next element, advancing the iterator, or
// xerrors.ErrNoSuchElement once the snapshot is exhausted.
func (it *Iterator[T]) Next() (T, error) {
	var zero T
	if it.pos >= len(it.items) {
		return zero, fmt.Errorf("%w: iterator exhausted", xerrors.ErrNoSuchElement)
	}
	v := it.items[it.pos]
	it.pos++
	return v, nil
}
