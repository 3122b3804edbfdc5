package increment

import "context"

// queryFrame is one entry on the active-query stack: the query currently
// executing, plus the reads/outputs it has recorded so far.
type queryFrame struct {
	key         DatabaseKeyIndex
	edges       []Edge
	heads       KeySet // cycle heads observed via recorded reads, accumulated
	durMin      Durability
	changed     Revision // max changed_at observed among recorded reads
	hasDur      bool
	trackedSeed []uint64 // tracked-struct ids from the previous execution
}

// queryStack is a logical caller's stack of in-flight queries, carried
// through context.Context so that recursive Fetch calls issued from inside
// a user query function share it with their caller (this is what makes
// same-thread cycle detection possible at all: the stack records every key
// currently "on the way down").
type queryStack struct {
	frames []*queryFrame
}

type queryStackContextKey struct{}

// withQueryStack attaches a fresh, empty queryStack to ctx.
func withQueryStack(ctx context.Context, s *queryStack) context.Context {
	return context.WithValue(ctx, queryStackContextKey{}, s)
}

// queryStackFromContext returns the queryStack carried by ctx, creating and
// attaching a new one if absent (mirroring threadIDFromContext: only the
// outermost Fetch call allocates one).
func queryStackFromContext(ctx context.Context) (context.Context, *queryStack) {
	if s, ok := ctx.Value(queryStackContextKey{}).(*queryStack); ok {
		return ctx, s
	}
	s := &queryStack{}
	return withQueryStack(ctx, s), s
}

// onStack reports whether key is currently being executed somewhere on this
// logical caller's stack. Same-thread cycle detection itself is done by
// SyncTable (ClaimOutcomeCycle); the core does not call onStack.
func (s *queryStack) onStack(key DatabaseKeyIndex) bool {
	for _, f := range s.frames {
		if f.key == key {
			return true
		}
	}
	return false
}

// push begins a new frame for key, returning it. The caller must call pop
// when execution of key finishes (normally via defer).
func (s *queryStack) push(key DatabaseKeyIndex) *queryFrame {
	f := &queryFrame{key: key}
	s.frames = append(s.frames, f)
	return f
}

// pop removes the top frame, which must be f; it panics otherwise. The
// executor builds the new QueryRevisions from f's recorded fields itself.
func (s *queryStack) pop(f *queryFrame) {
	n := len(s.frames)
	if n == 0 || s.frames[n-1] != f {
		panic("increment: query stack pop does not match top frame")
	}
	s.frames = s.frames[:n-1]
}

// reportRead appends a recorded dependency to the top frame (the query
// currently executing), tracking the running minimum durability, maximum
// changed_at, and accumulated cycle heads needed to compute the new memo's
// own QueryRevisions once execution finishes.
func (s *queryStack) reportRead(target DatabaseKeyIndex, durability Durability, changedAt Revision, heads KeySet) {
	if len(s.frames) == 0 {
		return
	}
	f := s.frames[len(s.frames)-1]
	f.edges = append(f.edges, Edge{Kind: EdgeInput, Target: target})
	if !f.hasDur {
		f.durMin = durability
		f.hasDur = true
	} else {
		f.durMin = minDurability(f.durMin, durability)
	}
	if changedAt > f.changed {
		f.changed = changedAt
	}
	f.heads = f.heads.Union(heads)
}

// reportOutput appends a recorded side effect to the top frame.
func (s *queryStack) reportOutput(target DatabaseKeyIndex) {
	if len(s.frames) == 0 {
		return
	}
	f := s.frames[len(s.frames)-1]
	f.edges = append(f.edges, Edge{Kind: EdgeOutput, Target: target})
}

// ReportRead records, on whatever query is currently executing on ctx's
// stack (a no-op if none is), a dependency on target. Ingredients that
// resolve a value without going through Fetch — a plain base-input lookup,
// for instance, which never claims or verifies — call this directly so the
// dependency still shows up in the caller's recorded edges.
func ReportRead(ctx context.Context, target DatabaseKeyIndex, durability Durability, changedAt Revision, heads KeySet) {
	_, stack := queryStackFromContext(ctx)
	stack.reportRead(target, durability, changedAt, heads)
}

// TrackedStructSeed returns the tracked-struct identifiers seeded from the
// previous execution of the query currently executing on ctx's stack, so a
// tracked-struct ingredient can hand out the same deterministic ids for
// structurally-identical outputs across re-executions. Nil when there is no
// executing query or no previous execution.
func TrackedStructSeed(ctx context.Context) []uint64 {
	_, stack := queryStackFromContext(ctx)
	if f, ok := stack.current(); ok {
		return f.trackedSeed
	}
	return nil
}

// current returns the frame currently executing on this stack, if any.
func (s *queryStack) current() (*queryFrame, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	return s.frames[len(s.frames)-1], true
}
