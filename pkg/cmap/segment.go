package cmap

import (
	"sync/atomic"

	"github.com/nbtaylor/concurrent/internal/ilog"
	"github.com/nbtaylor/concurrent/pkg/lock"
)

const maxSegmentCapacity = 1 << 30

// entry is one bucket-chain node. hash and key are fixed at creation;
// next is set once, at construction, and never mutated afterwards — the
// chain is immutable except for prepending a new head. value is the
// sole mutable field, updated via an atomic pointer swap so readers
// traversing the chain under no lock at all never observe a torn value.
type entry[K comparable, V any] struct {
	hash  uint32
	key   K
	next  *entry[K, V]
	value atomic.Pointer[V]
}

// bin is one slot of a segment's table: an atomically-published pointer
// to the head of that bucket's chain.
type bin[K comparable, V any] struct{ atomic.Pointer[entry[K, V]] }

// segment is one shard of a Map: its own bin table, guarded by its own
// lock, so puts/removes against different segments never contend. The
// table itself is swapped out wholesale on resize (via the outer
// atomic.Pointer[[]bin]) so a reader that captured the old table before
// a concurrent resize keeps working against a self-consistent, if
// stale, view — it never needs to coordinate with the resize.
type segment[K comparable, V any] struct {
	mu         *lock.ReentrantLock
	table      atomic.Pointer[[]bin[K, V]]
	count      atomic.Int64
	modCount   atomic.Int64
	threshold  int64
	loadFactor float64
	log        ilog.Logger
}

func newSegment[K comparable, V any](initialCap int, loadFactor float64, log ilog.Logger) *segment[K, V] {
	cap := 1
	for cap < initialCap {
		cap <<= 1
	}
	if cap < 2 {
		cap = 2
	}
	tbl := make([]bin[K, V], cap)
	seg := &segment[K, V]{
		mu:         lock.NewReentrantLock(false),
		loadFactor: loadFactor,
		threshold:  int64(float64(cap) * loadFactor),
		log:        log,
	}
	seg.table.Store(&tbl)
	return seg
}

func (seg *segment[K, V]) get(hash uint32, key K, eq func(K, K) bool) (V, bool) {
	var zero V
	if seg.count.Load() == 0 {
		return zero, false
	}
	tbl := *seg.table.Load()
	idx := hash & uint32(len(tbl)-1)
	for e := tbl[idx].Load(); e != nil; e = e.next {
		if e.hash == hash && eq(e.key, key) {
			if v := e.value.Load(); v != nil {
				return *v, true
			}
			return seg.recheckUnderLock(hash, key, eq)
		}
	}
	return zero, false
}

// recheckUnderLock is the fallback for the (practically unreachable,
// given values are always installed before a node is published) case of
// observing a nil value on a lock-free traversal: re-walk the chain
// while holding the segment lock before giving up.
func (seg *segment[K, V]) recheckUnderLock(hash uint32, key K, eq func(K, K) bool) (V, bool) {
	var zero V
	_ = seg.mu.Lock()
	defer func() { _ = seg.mu.Unlock() }()
	tbl := *seg.table.Load()
	idx := hash & uint32(len(tbl)-1)
	for e := tbl[idx].Load(); e != nil; e = e.next {
		if e.hash == hash && eq(e.key, key) {
			if v := e.value.Load(); v != nil {
				return *v, true
			}
		}
	}
	return zero, false
}

func (seg *segment[K, V]) containsValue(value V, veq func(V, V) bool) bool {
	tbl := *seg.table.Load()
	for i := range tbl {
		for e := tbl[i].Load(); e != nil; e = e.next {
			if v := e.value.Load(); v != nil && veq(*v, value) {
				return true
			}
		}
	}
	return false
}

// put inserts or updates key's mapping. If onlyIfAbsent is true and key
// is already present, the existing value is left untouched. Returns the
// previous value, if any.
func (seg *segment[K, V]) put(hash uint32, key K, value V, onlyIfAbsent bool, eq func(K, K) bool) (old V, hadOld bool) {
	_ = seg.mu.Lock()
	defer func() { _ = seg.mu.Unlock() }()

	tbl := *seg.table.Load()
	idx := hash & uint32(len(tbl)-1)
	first := tbl[idx].Load()
	for e := first; e != nil; e = e.next {
		if e.hash == hash && eq(e.key, key) {
			if v := e.value.Load(); v != nil {
				old, hadOld = *v, true
			}
			if !onlyIfAbsent {
				nv := value
				e.value.Store(&nv)
			}
			return
		}
	}

	c := seg.count.Load()
	if c+1 > seg.threshold && len(tbl) < maxSegmentCapacity {
		seg.rehash()
		tbl = *seg.table.Load()
		idx = hash & uint32(len(tbl)-1)
		first = tbl[idx].Load()
	}
	ne := &entry[K, V]{hash: hash, key: key, next: first}
	nv := value
	ne.value.Store(&nv)
	tbl[idx].Store(ne)
	seg.modCount.Add(1)
	seg.count.Store(c + 1)
	return
}

// replaceExpected implements the compare-and-swap style Replace(key,
// oldValue, newValue), matching by value equality under the lock.
func (seg *segment[K, V]) replaceExpected(hash uint32, key K, oldValue, newValue V, eq func(K, K) bool, veq func(V, V) bool) bool {
	_ = seg.mu.Lock()
	defer func() { _ = seg.mu.Unlock() }()
	tbl := *seg.table.Load()
	idx := hash & uint32(len(tbl)-1)
	for e := tbl[idx].Load(); e != nil; e = e.next {
		if e.hash == hash && eq(e.key, key) {
			v := e.value.Load()
			if v == nil || !veq(*v, oldValue) {
				return false
			}
			nv := newValue
			e.value.Store(&nv)
			return true
		}
	}
	return false
}

// remove deletes key's mapping. If matchValue is non-nil, the removal
// only proceeds if the current value equals *matchValue (the
// Remove(key, value) overload).
func (seg *segment[K, V]) remove(hash uint32, key K, matchValue *V, eq func(K, K) bool, veq func(V, V) bool) (removed V, ok bool) {
	_ = seg.mu.Lock()
	defer func() { _ = seg.mu.Unlock() }()

	tbl := *seg.table.Load()
	idx := hash & uint32(len(tbl)-1)
	first := tbl[idx].Load()
	var e *entry[K, V]
	for p := first; p != nil; p = p.next {
		if p.hash == hash && eq(p.key, key) {
			e = p
			break
		}
	}
	if e == nil {
		return
	}
	v := e.value.Load()
	if matchValue != nil {
		if v == nil || !veq(*v, *matchValue) {
			return
		}
	}

	// Entries after the removed node stay as-is; everything before it
	// must be cloned onto the new head, per the immutable-next chain.
	newFirst := e.next
	for p := first; p != e; p = p.next {
		clone := &entry[K, V]{hash: p.hash, key: p.key, next: newFirst}
		clone.value.Store(p.value.Load())
		newFirst = clone
	}
	tbl[idx].Store(newFirst)
	seg.modCount.Add(1)
	seg.count.Store(seg.count.Load() - 1)
	if v != nil {
		removed, ok = *v, true
	}
	return
}

func (seg *segment[K, V]) clear() {
	_ = seg.mu.Lock()
	defer func() { _ = seg.mu.Unlock() }()
	tbl := *seg.table.Load()
	for i := range tbl {
		tbl[i].Store(nil)
	}
	seg.modCount.Add(1)
	seg.count.Store(0)
}

// rehash doubles the table and redistributes entries, exploiting the
// longest trailing run of entries that land on the same new index: that
// run is moved as a unit (its tail is already immutable and correct),
// and only the entries before it need to be cloned. Caller must hold
// seg.mu.
func (seg *segment[K, V]) rehash() {
	oldTable := *seg.table.Load()
	oldCap := len(oldTable)
	newCap := oldCap << 1
	newTable := make([]bin[K, V], newCap)
	newMask := uint32(newCap - 1)

	seg.log.WithField("old_capacity", oldCap).WithField("new_capacity", newCap).Debug("segment resize")

	for i := 0; i < oldCap; i++ {
		e := oldTable[i].Load()
		if e == nil {
			continue
		}
		if e.next == nil {
			idx := e.hash & newMask
			newTable[idx].Store(e)
			continue
		}

		lastRun := e
		lastIdx := e.hash & newMask
		for last := e.next; last != nil; last = last.next {
			idx := last.hash & newMask
			if idx != lastIdx {
				lastIdx = idx
				lastRun = last
			}
		}
		newTable[lastIdx].Store(lastRun)

		for p := e; p != lastRun; p = p.next {
			clone := &entry[K, V]{hash: p.hash, key: p.key}
			clone.value.Store(p.value.Load())
			idx := p.hash & newMask
			clone.next = newTable[idx].Load()
			newTable[idx].Store(clone)
		}
	}

	seg.threshold = int64(float64(newCap) * seg.loadFactor)
	seg.table.Store(&newTable)
}

func (seg *segment[K, V]) snapshotEntries() []*entry[K, V] {
	tbl := *seg.table.Load()
	var out []*entry[K, V]
	for i := range tbl {
		for e := tbl[i].Load(); e != nil; e = e.next {
			out = append(out, e)
		}
	}
	return out
}
