package increment

import "context"

// runFixpoint executes cfg for key, transparently handling the case where
// the execution observes itself as a cycle head: it iterates, consulting
// cfg.RecoverFromCycle, until the produced value stops changing (or, once a
// Fallback value is adopted, one further iteration has run), then publishes
// the final memo into table.
//
// When the execution does not observe itself as a cycle head (the common
// case — no cycle, or a cycle this key merely passes through rather than
// heads), it publishes the single computed memo directly.
func runFixpoint[K comparable, V any](
	ctx context.Context,
	db *Database,
	table *MemoTable[V],
	key DatabaseKeyIndex,
	cfg *QueryConfig[K, V],
	input K,
	oldMemo *Memo[V],
) (*Memo[V], error) {
	revisionNow := db.Clock().Current()

	var lastProvisional *Memo[V]
	iteration := 0
	fellBack := false

	for {
		res, err := runExecute(ctx, db, key, cfg, input, oldMemo)
		if err != nil {
			return nil, err
		}

		if !res.Revisions.CycleHeads.Contains(key) {
			memo := NewMemo(res.Value, revisionNow, res.Revisions)
			table.Insert(key.Key, memo)
			return memo, nil
		}

		// We are (one of) the heads of a cycle. lastProvisional is whatever
		// was published for key before this iteration ran: on the very
		// first iteration, that's the FixpointInitial memo a recursive
		// self-claim inserted (fetch.go); on later iterations, it's the
		// provisional this loop itself published.
		if lastProvisional == nil {
			lastProvisional, _ = table.Get(key.Key)
		}

		converged := fellBack
		if !converged && lastProvisional != nil {
			if lpValue, ok := lastProvisional.Value(); ok && cfg.ValuesEqual != nil && cfg.ValuesEqual(res.Value, lpValue) {
				converged = true
			}
		}
		if converged {
			finalHeads, _ := res.Revisions.CycleHeads.WithRemoved(key)
			res.Revisions.CycleHeads = finalHeads
			if fellBack {
				// The value derives from the adopted fallback, not from a
				// converged dependency walk, so it must be re-verified
				// from scratch in later revisions.
				res.Revisions.Origin = QueryOrigin{Kind: OriginDerivedUntracked}
			}
			memo := NewMemo(res.Value, revisionNow, res.Revisions)
			memo.markVerifiedFinal()
			table.Insert(key.Key, memo)
			return memo, nil
		}

		if cfg.RecoverFromCycle == nil {
			return nil, &AssertionViolationError{Message: "fixpoint query has no recover-from-cycle callback", Cause: &CycleError{Key: key}}
		}

		iteration++
		if iteration > db.maxCycleIterations {
			return nil, &IterationOverflowError{Key: key, Iterations: iteration}
		}
		db.emit(Event{Thread: mustThreadID(ctx), Kind: EventWillIterateCycle, Key: key})

		info := CycleInfo{Heads: res.Revisions.CycleHeads, Iteration: iteration}
		recovery := cfg.RecoverFromCycle(db, info, input)

		value := res.Value
		revisions := res.Revisions
		if recovery.Action == ActionFallback {
			// Publish the fallback as one more provisional and run a final
			// iteration, so downstream memos recompute against the
			// fallback value before this key finalizes.
			value = recovery.FallbackValue
			revisions.Origin = QueryOrigin{Kind: OriginDerivedUntracked}
			fellBack = true
		}

		provisional := NewMemo(value, revisionNow, revisions)
		table.Insert(key.Key, provisional)
		lastProvisional = provisional
	}
}
