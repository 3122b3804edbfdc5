package increment

import (
	"context"
	"sync/atomic"
)

// ThreadID is an engine-assigned logical caller identity, stamped once at
// the top of a Fetch call tree and threaded through context.Context for the
// lifetime of that call tree. A real OS thread or goroutine id would be the
// wrong abstraction here: two unrelated top-level Fetch calls scheduled onto
// the same goroutine must not be treated as the same logical caller.
//
// The zero value is reserved to mean "no thread id assigned" (zero also
// means "no owner" in the sync table's packed slot state), so the first id
// handed out is 1.
type ThreadID uint16

// maxThreadID caps ids at 15 bits; the 16th bit of the packed sync-slot
// state is reserved for "anyone waiting".
const maxThreadID = 0x7FFF

var threadIDCounter atomic.Uint32

// newThreadID allocates a fresh, never-reused-within-process ThreadID.
// Panics if exhausted; 32767 concurrent top-level Fetch call trees is not a
// realistic ceiling in practice since ids are only live for the duration of
// one call tree, but nothing recycles them eagerly, so a very long-running
// process with a very high Fetch turnover could exhaust them. Recycling
// would require tracking "currently live" ids, which the sync table's
// claim-slot lifetime already does implicitly (see synctable.go); we don't
// duplicate that bookkeeping here.
func newThreadID() ThreadID {
	id := threadIDCounter.Add(1)
	if id > maxThreadID {
		panic("increment: exceeded maximum concurrent thread ids")
	}
	return ThreadID(id)
}

type threadIDContextKey struct{}

// withThreadID returns a context carrying id, for use by Fetch's top-level
// entry point.
func withThreadID(ctx context.Context, id ThreadID) context.Context {
	return context.WithValue(ctx, threadIDContextKey{}, id)
}

// WithThreadID attaches thread to ctx, so a recursive call the core makes
// back into an Ingredient implementation (MaybeChangedAfter) can re-enter
// Fetch under the same logical caller identity it was given, rather than
// minting a fresh one. Exported for Ingredient implementations outside this
// package (see internal/harness); the core itself only ever needs the
// unexported threadIDFromContext/withThreadID pair.
func WithThreadID(ctx context.Context, thread ThreadID) context.Context {
	return withThreadID(ctx, thread)
}

// threadIDFromContext returns the ThreadID carried by ctx, allocating and
// attaching a fresh one (returned alongside a context that carries it) if
// none is present yet. This is how a brand-new top-level Fetch call gets
// its identity, while a recursive Fetch issued from inside a query function
// (which already carries a context derived from its caller's) inherits the
// same identity.
func threadIDFromContext(ctx context.Context) (context.Context, ThreadID) {
	if id, ok := ctx.Value(threadIDContextKey{}).(ThreadID); ok {
		return ctx, id
	}
	id := newThreadID()
	return withThreadID(ctx, id), id
}
