package increment

import "context"

// Fetch is the orchestrator every *harness.DerivedIngredient[K,V] (and
// similar Ingredient implementations) calls to resolve a query's value: it
// drives the hot path, the cold path (claim, verify, execute), the cycle
// engine, and cross-thread propagation, restarting from the top whenever a
// claim attempt reports contention.
//
// ctx is extended (if not already carrying them) with a ThreadID and a
// queryStack, so that a recursive Fetch issued from inside cfg.Execute
// shares both with its caller.
func Fetch[K comparable, V any](
	ctx context.Context,
	db *Database,
	idx IngredientIndex,
	table *MemoTable[V],
	sync *SyncTable,
	lru *LRU,
	cfg *QueryConfig[K, V],
	keyIndex KeyIndex,
	input K,
) (V, error) {
	var zero V
	ctx, thread := threadIDFromContext(ctx)
	ctx, stack := queryStackFromContext(ctx)
	databaseKey := DatabaseKeyIndex{Ingredient: idx, Key: keyIndex}

	for {
		if db.Cancelled(ctx) {
			return zero, &RevisionCancelledError{Key: databaseKey}
		}

		memo, ok := fetchHot(db, databaseKey, table)
		if !ok {
			var err error
			memo, ok, err = fetchCold(ctx, db, thread, databaseKey, table, sync, cfg, keyIndex, input)
			if err != nil {
				return zero, err
			}
		}
		if !ok {
			// Claim contention (ClaimOutcomeRetry): restart from the top.
			continue
		}

		restart, err := propagate(ctx, db, thread, databaseKey, memo)
		if err != nil {
			return zero, err
		}
		if restart {
			continue
		}

		if evicted, didEvict := lru.RecordUse(keyIndex); didEvict {
			table.EvictValue(evicted)
		}

		value, hasValue := memo.Value()
		if !hasValue {
			// Raced with an eviction between fetchHot/fetchCold returning
			// and here; simplest correct response is to restart, which
			// will recompute it via the cold path.
			continue
		}

		stack.reportRead(databaseKey, memo.Revisions.Durability, memo.Revisions.ChangedAt, memo.CycleHeads())
		return value, nil
	}
}

// fetchHot is the O(1) hot path: a published memo exists, has a value, and
// shallow-verifies without walking dependencies.
func fetchHot[V any](db *Database, key DatabaseKeyIndex, table *MemoTable[V]) (*Memo[V], bool) {
	memo, ok := table.Get(key.Key)
	if !ok {
		return nil, false
	}
	if _, hasValue := memo.Value(); !hasValue {
		return nil, false
	}
	if !shallowVerify(db, key, memo, false) {
		return nil, false
	}
	return memo, true
}

// fetchCold claims key's slot and either confirms the existing memo via
// deep verification, executes it fresh (handling any cycle that surfaces),
// or — if the claim itself reports a cycle — returns/creates the
// FixpointInitial provisional. ok is false only on ClaimOutcomeRetry, in
// which case the caller must restart the whole Fetch loop.
func fetchCold[K comparable, V any](
	ctx context.Context,
	db *Database,
	thread ThreadID,
	key DatabaseKeyIndex,
	table *MemoTable[V],
	sync *SyncTable,
	cfg *QueryConfig[K, V],
	keyIndex KeyIndex,
	input K,
) (*Memo[V], bool, error) {
	outcome, guard := sync.Claim(ctx, thread, key)
	switch outcome {
	case ClaimOutcomeRetry:
		return nil, false, nil

	case ClaimOutcomeCycle:
		if cfg.Cycle != CycleFixpoint {
			return nil, false, &CycleError{Key: key}
		}
		memo, err := ensureFixpointInitial(db, table, cfg, key, keyIndex, input)
		return memo, memo != nil, err

	case ClaimOutcomeClaimed:
		// Release with Panicked unless the cold path finishes cleanly, so
		// a panic in the user function still unblocks waiters with the
		// fatal state before propagating.
		result := Panicked
		defer func() { guard.Release(result) }()
		memo, err := coldPathClaimed(ctx, db, key, table, cfg, keyIndex, input)
		if err != nil {
			return nil, false, err
		}
		result = Completed
		return memo, true, nil

	case ClaimOutcomePanicked:
		return nil, false, &PanickedError{Key: key}

	default:
		return nil, false, &AssertionViolationError{Message: "unreachable ClaimOutcome"}
	}
}

// coldPathClaimed runs once the caller owns key's claim: it confirms the
// existing memo via deep verification if possible, otherwise executes
// (which transparently drives the cycle engine via runFixpoint).
func coldPathClaimed[K comparable, V any](
	ctx context.Context,
	db *Database,
	key DatabaseKeyIndex,
	table *MemoTable[V],
	cfg *QueryConfig[K, V],
	keyIndex KeyIndex,
	input K,
) (*Memo[V], error) {
	oldMemo, hasOld := table.Get(keyIndex)

	if hasOld {
		if _, hasValue := oldMemo.Value(); hasValue {
			result, err := deepVerify(ctx, db, contextThread(ctx), key, oldMemo)
			if err != nil {
				return nil, err
			}
			if !result.Changed && result.CycleHeads.Len() == 0 {
				db.emit(Event{Thread: contextThread(ctx), Kind: EventDidValidateMemoizedValue, Key: key})
				return oldMemo, nil
			}
		}
	}

	var old *Memo[V]
	if hasOld {
		old = oldMemo
	}
	return runFixpoint(ctx, db, table, key, cfg, input, old)
}

// ensureFixpointInitial returns the FixpointInitial provisional memo for
// key, inserting one (seeded from cfg.CycleInitial) if none is published
// yet — the first time a key is found to participate in a cycle, this is
// what its recursive fetch observes.
func ensureFixpointInitial[K comparable, V any](
	db *Database,
	table *MemoTable[V],
	cfg *QueryConfig[K, V],
	key DatabaseKeyIndex,
	keyIndex KeyIndex,
	input K,
) (*Memo[V], error) {
	if memo, ok := table.Get(keyIndex); ok {
		return memo, nil
	}
	if cfg.CycleInitial == nil {
		return nil, &AssertionViolationError{Message: "fixpoint query has no cycle_initial callback", Cause: &CycleError{Key: key}}
	}
	initial := cfg.CycleInitial(input)
	memo := NewMemo(initial, db.Clock().Current(), fixpointInitialRevisions(key, db.Clock().Current()))
	// Load-or-store, NOT a blind insert: this runs without holding key's
	// claim, so a blind insert could clobber a memo the computing thread
	// published in the meantime.
	published, _ := table.InsertIfAbsent(keyIndex, memo)
	return published, nil
}

// propagate implements the cross-thread cycle rendezvous: if memo
// is provisional and names a cycle head other than ownKey, block on that
// head's owning ingredient until it's free, then report that the caller
// should restart its fetch (a newer, possibly-final memo may now exist).
// If waiting on a head would deadlock (it's on our own stack, i.e. owned by
// our own thread), we are a participant in that cycle ourselves and must
// not block: the provisional is returned as-is.
func propagate[V any](ctx context.Context, db *Database, thread ThreadID, ownKey DatabaseKeyIndex, memo *Memo[V]) (restart bool, err error) {
	heads := memo.CycleHeads()
	for _, head := range heads.Slice() {
		if head == ownKey {
			continue
		}
		db.emit(Event{Thread: thread, Kind: EventWillBlockOnKey, Key: head})
		switch db.Ingredient(head.Ingredient).SyncTable().WaitFor(ctx, thread, head.Key) {
		case WaitOutcomeReady:
			return true, nil
		case WaitOutcomePanicked:
			return false, &PanickedError{Key: head}
		}
	}
	return false, nil
}

// contextThread extracts the ThreadID already attached to ctx (Fetch's
// entry point guarantees one is present by the time coldPathClaimed runs).
func contextThread(ctx context.Context) ThreadID {
	return mustThreadID(ctx)
}
