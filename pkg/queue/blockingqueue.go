// Package queue implements bounded blocking collections: a
// linked-node, two-lock BlockingQueue (FIFO, separate put/take locks for
// concurrent producers and consumers) and a single-lock BlockingDeque
// (both-ended, one lock because either end can touch either end).
package queue

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/nbtaylor/concurrent/internal/ilog"
	"github.com/nbtaylor/concurrent/internal/xerrors"
	"github.com/nbtaylor/concurrent/pkg/aqs"
	"github.com/nbtaylor/concurrent/pkg/lock"
)

// isNilValue reports whether v is nil, seeing through the typed-nil
// gotcha where a nil pointer/map/slice/chan/func boxed into an any
// compares unequal to untyped nil.
func isNilValue[T any](v T) bool {
	i := any(v)
	if i == nil {
		return true
	}
	rv := reflect.ValueOf(i)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

type qnode[T any] struct {
	item T
	next *qnode[T]
}

// BlockingQueue is a FIFO queue bounded to a fixed capacity. Put blocks
// while the queue is full; Take blocks while it is empty. Following the
// classic two-lock algorithm, put and take use independent locks so a
// producer and a consumer never contend with each other directly —
// only producer-vs-producer and consumer-vs-consumer contend, and the
// shared atomic count is the only state touched by both sides.
type BlockingQueue[T any] struct {
	capacity int64
	count    atomic.Int64

	head *qnode[T] // sentinel: head.item is always the zero value
	last *qnode[T]

	putLock  *lock.ReentrantLock
	notFull  *aqs.ConditionObject
	takeLock *lock.ReentrantLock
	notEmpty *aqs.ConditionObject

	log ilog.Logger
}

// NewBlockingQueue constructs a BlockingQueue with the given capacity.
// A capacity <= 0 is not rejected: it is replaced by 1.
func NewBlockingQueue[T any](capacity int) *BlockingQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	sentinel := &qnode[T]{}
	q := &BlockingQueue[T]{
		capacity: int64(capacity),
		head:     sentinel,
		last:     sentinel,
		putLock:  lock.NewReentrantLock(false),
		takeLock: lock.NewReentrantLock(false),
		log:      ilog.Discard{},
	}
	q.notFull = q.putLock.NewCondition()
	q.notEmpty = q.takeLock.NewCondition()
	return q
}

// WithLogger installs a logger used for Debug-level backpressure
// diagnostics.
func (q *BlockingQueue[T]) WithLogger(lg ilog.Logger) *BlockingQueue[T] {
	q.log = lg
	return q
}

func (q *BlockingQueue[T]) enqueue(n *qnode[T]) {
	q.last.next = n
	q.last = n
}

func (q *BlockingQueue[T]) dequeue() T {
	h := q.head
	first := h.next
	h.next = h
	q.head = first
	x := first.item
	var zero T
	first.item = zero
	return x
}

func (q *BlockingQueue[T]) signalNotEmpty() {
	_ = q.takeLock.Lock()
	_ = q.notEmpty.Signal()
	_ = q.takeLock.Unlock()
}

func (q *BlockingQueue[T]) signalNotFull() {
	_ = q.putLock.Lock()
	_ = q.notFull.Signal()
	_ = q.putLock.Unlock()
}

// Put inserts item, blocking until space is available or ctx is
// cancelled.
func (q *BlockingQueue[T]) Put(ctx context.Context, item T) error {
	if isNilValue(item) {
		return fmt.Errorf("%w: nil item", xerrors.ErrInvalidArgument)
	}
	if err := q.putLock.LockCtx(ctx); err != nil {
		return err
	}
	defer func() { _ = q.putLock.Unlock() }()

	if q.count.Load() == q.capacity {
		q.log.WithField("capacity", q.capacity).Debug("put blocked: queue full")
	}
	for q.count.Load() == q.capacity {
		if err := q.notFull.Await(ctx); err != nil {
			return err
		}
	}
	q.enqueue(&qnode[T]{item: item})
	c := q.count.Add(1) - 1
	if c+1 < q.capacity {
		_ = q.notFull.Signal()
	}
	if c == 0 {
		q.signalNotEmpty()
	}
	return nil
}

// Offer inserts item only if the queue is not currently full, never
// blocking.
func (q *BlockingQueue[T]) Offer(item T) (bool, error) {
	if isNilValue(item) {
		return false, fmt.Errorf("%w: nil item", xerrors.ErrInvalidArgument)
	}
	if q.count.Load() == q.capacity {
		return false, nil
	}
	_ = q.putLock.Lock()
	defer func() { _ = q.putLock.Unlock() }()
	if q.count.Load() == q.capacity {
		return false, nil
	}
	q.enqueue(&qnode[T]{item: item})
	c := q.count.Add(1) - 1
	if c+1 < q.capacity {
		_ = q.notFull.Signal()
	}
	if c == 0 {
		q.signalNotEmpty()
	}
	return true, nil
}

// OfferTimeout inserts item, waiting up to timeout for space to become
// available.
func (q *BlockingQueue[T]) OfferTimeout(ctx context.Context, item T, timeout time.Duration) (bool, error) {
	if isNilValue(item) {
		return false, fmt.Errorf("%w: nil item", xerrors.ErrInvalidArgument)
	}
	if err := q.putLock.LockCtx(ctx); err != nil {
		return false, err
	}
	defer func() { _ = q.putLock.Unlock() }()

	remaining := timeout
	for q.count.Load() == q.capacity {
		if remaining <= 0 {
			return false, fmt.Errorf("%w: queue still full after %v", xerrors.ErrTimeout, timeout)
		}
		var err error
		remaining, err = q.notFull.AwaitNanos(ctx, remaining)
		if err != nil {
			return false, err
		}
	}
	q.enqueue(&qnode[T]{item: item})
	c := q.count.Add(1) - 1
	if c+1 < q.capacity {
		_ = q.notFull.Signal()
	}
	if c == 0 {
		q.signalNotEmpty()
	}
	return true, nil
}

// Take removes and returns the head of the queue, blocking until an
// element is available or ctx is cancelled.
func (q *BlockingQueue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	if err := q.takeLock.LockCtx(ctx); err != nil {
		return zero, err
	}
	defer func() { _ = q.takeLock.Unlock() }()

	if q.count.Load() == 0 {
		q.log.Debug("take blocked: queue empty")
	}
	for q.count.Load() == 0 {
		if err := q.notEmpty.Await(ctx); err != nil {
			return zero, err
		}
	}
	x := q.dequeue()
	c := q.count.Add(-1) + 1
	if c > 1 {
		_ = q.notEmpty.Signal()
	}
	if c == q.capacity {
		q.signalNotFull()
	}
	return x, nil
}

// Poll removes and returns the head of the queue if one is present,
// never blocking.
func (q *BlockingQueue[T]) Poll() (T, bool) {
	var zero T
	if q.count.Load() == 0 {
		return zero, false
	}
	_ = q.takeLock.Lock()
	defer func() { _ = q.takeLock.Unlock() }()
	if q.count.Load() == 0 {
		return zero, false
	}
	x := q.dequeue()
	c := q.count.Add(-1) + 1
	if c > 1 {
		_ = q.notEmpty.Signal()
	}
	if c == q.capacity {
		q.signalNotFull()
	}
	return x, true
}

// PollTimeout removes and returns the head of the queue, waiting up to
// timeout for an element to become available.
func (q *BlockingQueue[T]) PollTimeout(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T
	if err := q.takeLock.LockCtx(ctx); err != nil {
		return zero, false, err
	}
	defer func() { _ = q.takeLock.Unlock() }()

	remaining := timeout
	for q.count.Load() == 0 {
		if remaining <= 0 {
			return zero, false, fmt.Errorf("%w: queue still empty after %v", xerrors.ErrTimeout, timeout)
		}
		var err error
		remaining, err = q.notEmpty.AwaitNanos(ctx, remaining)
		if err != nil {
			return zero, false, err
		}
	}
	x := q.dequeue()
	c := q.count.Add(-1) + 1
	if c > 1 {
		_ = q.notEmpty.Signal()
	}
	if c == q.capacity {
		q.signalNotFull()
	}
	return x, true, nil
}

// Peek returns the head of the queue without removing it.
func (q *BlockingQueue[T]) Peek() (T, bool) {
	var zero T
	_ = q.takeLock.Lock()
	defer func() { _ = q.takeLock.Unlock() }()
	first := q.head.next
	if first == nil {
		return zero, false
	}
	return first.item, true
}

// Element returns the head of the queue without removing it, like Peek,
// but reports xerrors.ErrNoSuchElement instead of a bare false when the
// queue is empty.
func (q *BlockingQueue[T]) Element() (T, error) {
	if v, ok := q.Peek(); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: queue is empty", xerrors.ErrNoSuchElement)
}

// Size returns the number of elements currently queued.
func (q *BlockingQueue[T]) Size() int { return int(q.count.Load()) }

// RemainingCapacity returns the number of additional elements the queue
// can accept without blocking.
func (q *BlockingQueue[T]) RemainingCapacity() int { return int(q.capacity - q.count.Load()) }

func (q *BlockingQueue[T]) fullyLock() {
	_ = q.putLock.Lock()
	_ = q.takeLock.Lock()
}

func (q *BlockingQueue[T]) fullyUnlock() {
	_ = q.takeLock.Unlock()
	_ = q.putLock.Unlock()
}

// DrainTo moves up to max queued elements (0 meaning unbounded) into
// dst, returning the number moved. It holds take_lock only, the same
// as Take/Poll, repeating the single-node dequeue() promotion (the
// removed node itself becomes the new sentinel head) for each element
// drained — so, just like a run of plain dequeue calls, it never
// touches last and needs no coordination with put_lock. It wakes a
// blocked producer once if the queue was full beforehand.
func (q *BlockingQueue[T]) DrainTo(dst *[]T, max int) int {
	_ = q.takeLock.Lock()
	defer func() { _ = q.takeLock.Unlock() }()

	if avail := int(q.count.Load()); max <= 0 || max > avail {
		max = avail
	}
	h := q.head
	first := h.next
	n := 0
	for first != nil && n < max {
		*dst = append(*dst, first.item)
		var zero T
		first.item = zero
		h.next = h
		h = first
		first = first.next
		n++
	}
	if n > 0 {
		q.head = h
		if q.count.Add(int64(-n))+int64(n) == q.capacity {
			q.signalNotFull()
		}
	}
	return n
}

// Remove deletes the first element equal to target (per eq), reporting
// whether one was found. This is an O(n), fully-locked structural
// mutation. Like every other mutator here, it wakes a producer blocked
// in Put/OfferTimeout if removing this element drops the queue out of
// full — otherwise that producer would miss its wakeup and wait on an
// unrelated future Take/Poll.
func (q *BlockingQueue[T]) Remove(target T, eq func(T, T) bool) bool {
	q.fullyLock()
	defer q.fullyUnlock()

	trail := q.head
	for p := q.head.next; p != nil; p = p.next {
		if eq(p.item, target) {
			trail.next = p.next
			if q.last == p {
				q.last = trail
			}
			c := q.count.Add(-1) + 1
			if c == q.capacity {
				_ = q.notFull.Signal()
			}
			return true
		}
		trail = p
	}
	return false
}

// Contains reports whether any element equals target (per eq).
func (q *BlockingQueue[T]) Contains(target T, eq func(T, T) bool) bool {
	q.fullyLock()
	defer q.fullyUnlock()
	for p := q.head.next; p != nil; p = p.next {
		if eq(p.item, target) {
			return true
		}
	}
	return false
}

// ToArray returns a snapshot of the queue's elements in FIFO order.
func (q *BlockingQueue[T]) ToArray() []T {
	q.fullyLock()
	defer q.fullyUnlock()
	out := make([]T, 0, q.count.Load())
	for p := q.head.next; p != nil; p = p.next {
		out = append(out, p.item)
	}
	return out
}
