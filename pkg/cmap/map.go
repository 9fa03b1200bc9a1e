// Package cmap implements a segmented concurrent hash map: a fixed
// number of independently-locked segments, each an open-chained hash
// table of its own, giving readers lock-free Get calls and writers
// contention only against other writers hitting the same segment.
package cmap

import (
	"fmt"
	"reflect"

	"github.com/nbtaylor/concurrent/internal/ilog"
	"github.com/nbtaylor/concurrent/internal/xerrors"
)

const (
	defaultConcurrencyLevel = 16
	defaultInitialCapacity  = 16
	defaultLoadFactor       = 0.75
	maxSegments             = 1 << 16

	// sizeRetries is the number of optimistic, lock-free passes a bulk
	// read attempts before falling back to locking every segment in
	// index order. Modelled on the classic ConcurrentHashMap.size()
	// retry budget: two retries beyond the initial pass.
	sizeRetries = 2
)

// Option configures a Map at construction time.
type Option[K comparable, V any] func(*mapConfig[K, V])

type mapConfig[K comparable, V any] struct {
	concurrencyLevel int
	initialCapacity  int
	loadFactor       float64
	hasher           func(K) uint32
	keyEqual         func(K, K) bool
	valueEqual       func(V, V) bool
	logger           ilog.Logger
}

// WithConcurrencyLevel hints at the expected number of goroutines that
// will update the map concurrently; the segment count is derived from
// it (rounded up to a power of two).
func WithConcurrencyLevel[K comparable, V any](n int) Option[K, V] {
	return func(c *mapConfig[K, V]) { c.concurrencyLevel = n }
}

// WithInitialCapacity reserves table space for approximately n entries
// up front, reducing early resizes.
func WithInitialCapacity[K comparable, V any](n int) Option[K, V] {
	return func(c *mapConfig[K, V]) { c.initialCapacity = n }
}

// WithLoadFactor overrides the default 0.75 fill-ratio resize trigger.
func WithLoadFactor[K comparable, V any](f float64) Option[K, V] {
	return func(c *mapConfig[K, V]) { c.loadFactor = f }
}

// WithHasher supplies the hash function used for key placement. The
// default, DefaultHasher[K](), works for any comparable K but is not
// the fastest option for a given key type — prefer StringHasher or
// IntHasher (or a custom one) on a hot path.
func WithHasher[K comparable, V any](h func(K) uint32) Option[K, V] {
	return func(c *mapConfig[K, V]) { c.hasher = h }
}

// WithValueEqual overrides the equality used for value-based operations
// (ContainsValue, Remove(key, value), Replace(key, old, new)) — defaults
// to a nil-safe comparison that requires V be comparable-by-reflection
// via ==, which is only valid when V is itself comparable. Supply this
// whenever V is not a comparable type.
func WithValueEqual[K comparable, V any](eq func(V, V) bool) Option[K, V] {
	return func(c *mapConfig[K, V]) { c.valueEqual = eq }
}

// WithLogger installs a logger used for Debug-level diagnostics.
func WithLogger[K comparable, V any](lg ilog.Logger) Option[K, V] {
	return func(c *mapConfig[K, V]) { c.logger = lg }
}

// Map is a thread-safe hash map supporting a high degree of concurrent
// reads and writes without a single global lock. Keys and values must
// be non-nil (nil being whatever Go's zero value for an interface,
// pointer, map, slice, chan, or func type is — non-nullable K/V types
// such as int or string trivially satisfy this).
type Map[K comparable, V any] struct {
	segments     []*segment[K, V]
	segmentMask  uint32
	segmentShift uint
	hasher       func(K) uint32
	keyEqual     func(K, K) bool
	valueEqual   func(V, V) bool
	log          ilog.Logger
}

// New constructs a Map. With no options it behaves like a reasonable
// general-purpose default: 16 segments, a 16-entry initial capacity
// divided among them (each segment table starts at its minimum of 2
// bins), 0.75 load factor, DefaultHasher[K]() for hashing.
func New[K comparable, V any](opts ...Option[K, V]) *Map[K, V] {
	cfg := mapConfig[K, V]{
		concurrencyLevel: defaultConcurrencyLevel,
		initialCapacity:  defaultInitialCapacity,
		loadFactor:       defaultLoadFactor,
		hasher:           DefaultHasher[K](),
		logger:           ilog.Discard{},
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.concurrencyLevel < 1 {
		cfg.concurrencyLevel = 1
	}
	if cfg.concurrencyLevel > maxSegments {
		cfg.concurrencyLevel = maxSegments
	}

	ssize := 1
	shift := uint(0)
	for ssize < cfg.concurrencyLevel {
		ssize <<= 1
		shift++
	}

	perSegCap := cfg.initialCapacity / ssize
	if perSegCap < 1 {
		perSegCap = 1
	}

	m := &Map[K, V]{
		segments:     make([]*segment[K, V], ssize),
		segmentMask:  uint32(ssize - 1),
		segmentShift: 32 - shift,
		hasher:       cfg.hasher,
		keyEqual:     func(a, b K) bool { return a == b },
		valueEqual:   cfg.valueEqual,
		log:          cfg.logger,
	}
	if m.valueEqual == nil {
		m.valueEqual = func(a, b V) bool {
			return any(a) == any(b)
		}
	}
	for i := range m.segments {
		m.segments[i] = newSegment[K, V](perSegCap, cfg.loadFactor, cfg.logger)
	}
	return m
}

// isNilValue reports whether v is nil: either the untyped nil an
// interface-typed T holds, or a nil pointer/map/slice/chan/func wrapped
// in T's concrete type (which compares unequal to untyped nil once
// boxed in an any — the classic Go typed-nil gotcha, so a reflect check
// is needed to see through it). Non-nullable T (int, string, a plain
// struct) always reports false here, which is correct: those types
// have no null to reject.
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

func (m *Map[K, V]) segmentFor(hash uint32) *segment[K, V] {
	idx := (spread(hash) >> m.segmentShift) & m.segmentMask
	return m.segments[idx]
}

// Get returns the value associated with key, if any.
func (m *Map[K, V]) Get(key K) (V, bool) {
	h := m.hasher(key)
	return m.segmentFor(h).get(h, key, m.keyEqual)
}

// ContainsKey reports whether key is present.
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// ContainsValue reports whether any mapping has value. It attempts an
// optimistic, lock-free pass across all segments first (snapshotting
// each segment's modCount before and after), retrying up to
// sizeRetries times if a segment mutated mid-scan; on repeated
// instability it falls back to locking every segment, in index order,
// for one fully-consistent pass. O(n) regardless; intended for
// diagnostics, not hot paths.
func (m *Map[K, V]) ContainsValue(value V) bool {
	last := make([]int64, len(m.segments))
	for attempt := 0; attempt <= sizeRetries; attempt++ {
		found := false
		stable := true
		for i, seg := range m.segments {
			if seg.containsValue(value, m.valueEqual) {
				found = true
			}
			mc := seg.modCount.Load()
			if attempt > 0 && mc != last[i] {
				stable = false
			}
			last[i] = mc
		}
		if attempt > 0 && stable {
			return found
		}
	}
	return m.lockedContainsValue(value)
}

// lockAllSegments acquires every segment's lock, in index order, to
// avoid the classic deadlock risk of lock ordering. unlockAllSegments
// must be deferred immediately after a successful call, releasing in
// the reverse order.
func (m *Map[K, V]) lockAllSegments() {
	for _, seg := range m.segments {
		_ = seg.mu.Lock()
	}
}

func (m *Map[K, V]) unlockAllSegments() {
	for i := len(m.segments) - 1; i >= 0; i-- {
		_ = m.segments[i].mu.Unlock()
	}
}

func (m *Map[K, V]) lockedContainsValue(value V) bool {
	m.log.Debug("contains_value falling back to full segment lock after unstable optimistic pass")
	m.lockAllSegments()
	defer m.unlockAllSegments()
	for _, seg := range m.segments {
		if seg.containsValue(value, m.valueEqual) {
			return true
		}
	}
	return false
}

// Put associates value with key, replacing any existing mapping, and
// returns the value previously associated with key (if any).
func (m *Map[K, V]) Put(key K, value V) (V, bool, error) {
	var zero V
	if isNilValue(key) {
		return zero, false, fmt.Errorf("%w: nil key", xerrors.ErrInvalidArgument)
	}
	if isNilValue(value) {
		return zero, false, fmt.Errorf("%w: nil value", xerrors.ErrInvalidArgument)
	}
	h := m.hasher(key)
	old, had := m.segmentFor(h).put(h, key, value, false, m.keyEqual)
	return old, had, nil
}

// PutIfAbsent associates value with key only if key is not already
// present, returning the existing value when it was.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (V, bool, error) {
	var zero V
	if isNilValue(key) {
		return zero, false, fmt.Errorf("%w: nil key", xerrors.ErrInvalidArgument)
	}
	if isNilValue(value) {
		return zero, false, fmt.Errorf("%w: nil value", xerrors.ErrInvalidArgument)
	}
	h := m.hasher(key)
	old, had := m.segmentFor(h).put(h, key, value, true, m.keyEqual)
	return old, had, nil
}

// Replace replaces key's mapping with value only if key is currently
// present, returning the value it replaced.
func (m *Map[K, V]) Replace(key K, value V) (V, bool, error) {
	var zero V
	if isNilValue(value) {
		return zero, false, fmt.Errorf("%w: nil value", xerrors.ErrInvalidArgument)
	}
	h := m.hasher(key)
	seg := m.segmentFor(h)
	// Hold the (reentrant) segment lock across the presence check and
	// the put so a concurrent Remove cannot turn this into an insert.
	_ = seg.mu.Lock()
	defer func() { _ = seg.mu.Unlock() }()
	if _, ok := seg.get(h, key, m.keyEqual); !ok {
		return zero, false, nil
	}
	old, had := seg.put(h, key, value, false, m.keyEqual)
	return old, had, nil
}

// ReplaceExpected replaces key's mapping with newValue only if it is
// currently mapped to oldValue (a compare-and-swap over the entry).
func (m *Map[K, V]) ReplaceExpected(key K, oldValue, newValue V) (bool, error) {
	if isNilValue(newValue) {
		return false, fmt.Errorf("%w: nil value", xerrors.ErrInvalidArgument)
	}
	h := m.hasher(key)
	ok := m.segmentFor(h).replaceExpected(h, key, oldValue, newValue, m.keyEqual, m.valueEqual)
	return ok, nil
}

// Remove deletes key's mapping, returning the value it held.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	h := m.hasher(key)
	return m.segmentFor(h).remove(h, key, nil, m.keyEqual, m.valueEqual)
}

// RemoveExpected deletes key's mapping only if it is currently mapped to
// value.
func (m *Map[K, V]) RemoveExpected(key K, value V) bool {
	h := m.hasher(key)
	_, ok := m.segmentFor(h).remove(h, key, &value, m.keyEqual, m.valueEqual)
	return ok
}

// Size returns the total number of mappings across all segments. Like
// ContainsValue, it is an optimistic modCount-snapshot pass, retried up
// to sizeRetries times, falling back to a fully-locked pass (every
// segment locked in index order) only if segments keep mutating out
// from under it.
func (m *Map[K, V]) Size() int64 {
	last := make([]int64, len(m.segments))
	for attempt := 0; attempt <= sizeRetries; attempt++ {
		var sum int64
		stable := true
		for i, seg := range m.segments {
			sum += seg.count.Load()
			mc := seg.modCount.Load()
			if attempt > 0 && mc != last[i] {
				stable = false
			}
			last[i] = mc
		}
		if attempt > 0 && stable {
			return sum
		}
	}
	return m.lockedSize()
}

func (m *Map[K, V]) lockedSize() int64 {
	m.log.Debug("size falling back to full segment lock after unstable optimistic pass")
	m.lockAllSegments()
	defer m.unlockAllSegments()
	var sum int64
	for _, seg := range m.segments {
		sum += seg.count.Load()
	}
	return sum
}

// IsEmpty reports whether the map holds no mappings.
func (m *Map[K, V]) IsEmpty() bool { return m.Size() == 0 }

// Clear removes every mapping, segment by segment: this is not an
// atomic whole-map operation, so a concurrent reader may briefly
// observe a partially-cleared map — the same weak consistency the
// segmented design gives every bulk operation.
func (m *Map[K, V]) Clear() {
	m.log.WithField("segments", len(m.segments)).Debug("map clear")
	for _, seg := range m.segments {
		seg.clear()
	}
}

// Entry is one key/value pair returned by a snapshot view.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Keys returns a point-in-time snapshot of the map's keys. Like all
// bulk views here, it is weakly consistent: it reflects the state of
// each segment at the moment that segment was visited, not a single
// consistent instant across the whole map.
func (m *Map[K, V]) Keys() []K {
	var out []K
	for _, seg := range m.segments {
		for _, e := range seg.snapshotEntries() {
			out = append(out, e.key)
		}
	}
	return out
}

// Values returns a point-in-time snapshot of the map's values.
func (m *Map[K, V]) Values() []V {
	var out []V
	for _, seg := range m.segments {
		for _, e := range seg.snapshotEntries() {
			if v := e.value.Load(); v != nil {
				out = append(out, *v)
			}
		}
	}
	return out
}

// Entries returns a point-in-time snapshot of the map's key/value
// pairs.
func (m *Map[K, V]) Entries() []Entry[K, V] {
	var out []Entry[K, V]
	for _, seg := range m.segments {
		for _, e := range seg.snapshotEntries() {
			if v := e.value.Load(); v != nil {
				out = append(out, Entry[K, V]{Key: e.key, Value: *v})
			}
		}
	}
	return out
}

// Range calls fn for every mapping, in weakly-consistent snapshot
// order (see Keys), stopping early if fn returns false.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, entry := range m.Entries() {
		if !fn(entry.Key, entry.Value) {
			return
		}
	}
}
