package increment

import "context"

// executeResult is what runExecute hands back to its caller (fetch.go / the
// cycle engine): the freshly computed value plus the revisions built from
// the stack frame's recorded reads, backdated and diffed.
type executeResult[V any] struct {
	Value     V
	Revisions QueryRevisions
}

// runExecute runs cfg.Execute under a fresh stack frame for key, then
// backdates and diffs the result against oldMemo (if any). It does not
// itself publish a memo, enter the cycle engine, or handle panics — callers
// (fetch.go, cycle.go) are responsible for those, since the right response
// to each differs between the plain path and the fixpoint path.
//
// ctx must already carry the query stack and thread id for the current
// logical caller (fetch.go's top-level entry point establishes both). Split
// out so the cycle engine (cycle.go) can call it once per iteration without
// duplicating the backdate/diff logic.
func runExecute[K comparable, V any](
	ctx context.Context,
	db *Database,
	key DatabaseKeyIndex,
	cfg *QueryConfig[K, V],
	input K,
	oldMemo *Memo[V],
) (executeResult[V], error) {
	db.emit(Event{Thread: mustThreadID(ctx), Kind: EventWillExecute, Key: key})

	_, stack := queryStackFromContext(ctx)

	frame := stack.push(key)
	if oldMemo != nil {
		// Seed tracked-struct identifiers from the previous execution so
		// re-execution reuses the same ids for structurally-identical
		// outputs (readable mid-execution via TrackedStructSeed; the core
		// never interprets the ids itself).
		frame.trackedSeed = oldMemo.Revisions.TrackedStructIDs
	}
	// Deferred so a panicking user function still unwinds the frame.
	defer stack.pop(frame)
	value, err := cfg.Execute(ctx, db, input)
	if err != nil {
		return executeResult[V]{}, err
	}

	durability := frame.durMin
	if !frame.hasDur {
		durability = Low
	}
	// changed_at is the newest changed_at among the recorded reads: the
	// value cannot have changed later than its newest input did. A query
	// that recorded no reads is stamped with the current revision.
	changedAt := frame.changed
	if changedAt == 0 {
		changedAt = db.Clock().Current()
	}
	revisions := QueryRevisions{
		ChangedAt:        changedAt,
		Durability:       durability,
		Origin:           QueryOrigin{Kind: OriginDerived, Edges: frame.edges},
		CycleHeads:       frame.heads,
		TrackedStructIDs: frame.trackedSeed,
	}
	if oldMemo != nil {
		backdateIfAppropriate(cfg, oldMemo, &revisions, value)
		diffOutputs(db, key, oldMemo, revisions)
	}

	return executeResult[V]{Value: value, Revisions: revisions}, nil
}

// mustThreadID returns the ThreadID already attached to ctx, or the zero
// value if absent. Besides event emission, fetch.go uses it (via
// contextThread) for the thread identity passed to deep verification, on a
// path where Fetch has always attached an id first.
func mustThreadID(ctx context.Context) ThreadID {
	if id, ok := ctx.Value(threadIDContextKey{}).(ThreadID); ok {
		return id
	}
	return 0
}

// backdateIfAppropriate: if the newly computed value is equal (per the
// query's configured equality) to the old memo's value, the new revisions
// adopt the old changed_at, since nothing actually changed from a
// dependent's point of view, and its durability becomes the max of the two
// (the value is now known to be at least as stable as the old one was).
func backdateIfAppropriate[K comparable, V any](cfg *QueryConfig[K, V], oldMemo *Memo[V], revisions *QueryRevisions, newValue V) {
	oldValue, ok := oldMemo.Value()
	if !ok || cfg.ValuesEqual == nil || !cfg.ValuesEqual(oldValue, newValue) {
		return
	}
	revisions.ChangedAt = oldMemo.Revisions.ChangedAt
	revisions.Durability = maxDurability(revisions.Durability, oldMemo.Revisions.Durability)
}

// diffOutputs reports every output edge present in oldMemo but absent from
// the freshly recorded revisions as stale, so its owning ingredient can
// reclaim it.
func diffOutputs[V any](db *Database, key DatabaseKeyIndex, oldMemo *Memo[V], revisions QueryRevisions) {
	newOutputs := make(KeySet)
	for _, e := range revisions.Origin.Outputs() {
		newOutputs[e.Target] = struct{}{}
	}
	for _, e := range oldMemo.Revisions.Origin.Outputs() {
		if !newOutputs.Contains(e.Target) {
			db.Ingredient(e.Target.Ingredient).RemoveStaleOutput(key, e.Target.Key)
		}
	}
}
