package cowlist

import "github.com/nbtaylor/concurrent/internal/ilog"

// Set is a thread-safe set with the same copy-on-write array backing
// as List, built as a thin wrapper that enforces absence before every
// insertion. Appropriate only for small-to-moderate sets, since every
// Add is an O(n) scan plus an O(n) array copy — the same tradeoff the
// underlying List makes, traded for iteration that never blocks and
// never tears.
type Set[T any] struct {
	list *List[T]
	eq   func(T, T) bool
}

// NewSet constructs an empty Set using eq for membership comparisons.
func NewSet[T any](eq func(T, T) bool) *Set[T] {
	return &Set[T]{list: New[T](), eq: eq}
}

// WithLogger installs a logger used for Debug-level diagnostics on each
// backing-array replacement.
func (s *Set[T]) WithLogger(lg ilog.Logger) *Set[T] {
	s.list.WithLogger(lg)
	return s
}

// Add inserts value if not already present, reporting whether it was
// added.
func (s *Set[T]) Add(value T) bool {
	return s.list.AddIfAbsent(value, s.eq)
}

// AddAll inserts every element of values not already present (and not
// duplicated among values), returning the count added.
func (s *Set[T]) AddAll(values []T) int {
	return s.list.AddAllAbsent(values, s.eq)
}

// Remove deletes value if present, reporting whether it was found.
func (s *Set[T]) Remove(value T) bool {
	return s.list.Remove(value, s.eq)
}

// Contains reports whether value is a member.
func (s *Set[T]) Contains(value T) bool {
	return s.list.Contains(value, s.eq)
}

// Size returns the number of members.
func (s *Set[T]) Size() int { return s.list.Size() }

// IsEmpty reports whether the set has no members.
func (s *Set[T]) IsEmpty() bool { return s.list.IsEmpty() }

// Clear removes every member.
func (s *Set[T]) Clear() { s.list.Clear() }

// ToArray returns a snapshot copy of the set's current members.
func (s *Set[T]) ToArray() []T { return s.list.ToArray() }

// RetainAll keeps only members equal to some element of values,
// reporting whether the set was modified.
func (s *Set[T]) RetainAll(values []T) bool { return s.list.RetainAll(values, s.eq) }

// RemoveAll deletes every member equal to some element of values,
// reporting whether the set was modified.
func (s *Set[T]) RemoveAll(values []T) bool { return s.list.RemoveAll(values, s.eq) }

// Iterator returns a forward iterator over a frozen snapshot of the
// set's members.
func (s *Set[T]) Iterator() *ListIterator[T] { return s.list.Iterator() }
