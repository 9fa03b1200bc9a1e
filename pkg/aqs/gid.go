package aqs

import (
	"bytes"
	"runtime"
	"strconv"
)

// G is an opaque handle identifying a goroutine, used by the engine and
// its subclasses (ReentrantLock, ReentrantReadWriteLock) as the owner /
// thread-identity token described by the external-interfaces contract.
// It stands in for the native thread reference a systems-language port
// would use.
type G uint64

// CurrentG returns a handle for the calling goroutine. It is the
// goroutine-identity shim every owner-tracking type in this module is
// built on: ReentrantLock compares it to decide reentrancy, and the
// engine's queue-introspection queries report it back to callers.
//
// This parses the goroutine id out of the header line of a
// runtime.Stack dump ("goroutine 123 [running]: ..."), a technique
// goroutine-local-storage shims across the ecosystem use in the absence
// of a public API. It is not cheap; callers on a hot path should cache
// the result for the lifetime of their goroutine rather than call this
// repeatedly.
func CurrentG() G {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	b = bytes.TrimPrefix(b, []byte(prefix))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		// Should be unreachable given the runtime's own output format;
		// fall back to a sentinel rather than panicking in a locking
		// primitive.
		return 0
	}
	return G(id)
}
