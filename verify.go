package increment

import "context"

// shallowVerify is an O(1) check of whether memo is still valid in the
// current revision, without walking dependencies. When allowProvisional is
// false and memo may be provisional, its cycle heads are checked first: if
// any head is not yet final the result is false, even for a memo already
// verified this revision; otherwise memo is promoted to final. After that,
// the result is true if memo was already verified this revision, or if
// CheckDurability proves nothing of sufficient durability changed since
// its last verification (in which case outputs are marked validated).
func shallowVerify[V any](db *Database, key DatabaseKeyIndex, memo *Memo[V], allowProvisional bool) bool {
	if !allowProvisional && memo.MayBeProvisional() {
		if !validateProvisional(db, memo) {
			return false
		}
	}

	now := db.Clock().Current()
	if memo.VerifiedAt() == now {
		return true
	}

	if memo.CheckDurability(db.Clock()) {
		memo.setVerifiedAt(now)
		markOutputsVerified(db, key, memo.Revisions.Origin)
		return true
	}
	return false
}

// validateProvisional checks whether every cycle head memo depends on has
// since been finalized; if so, it promotes memo to verified-final and
// returns true.
func validateProvisional[V any](db *Database, memo *Memo[V]) bool {
	for _, head := range memo.Revisions.CycleHeads.Slice() {
		if !db.Ingredient(head.Ingredient).IsVerifiedFinal(head.Key) {
			return false
		}
	}
	memo.markVerifiedFinal()
	return true
}

// markOutputsVerified tells every owning ingredient of origin's output edges
// that databaseKey still validly produces them, without waiting for
// databaseKey to actually re-execute.
func markOutputsVerified(db *Database, databaseKey DatabaseKeyIndex, origin QueryOrigin) {
	for _, e := range origin.Outputs() {
		db.Ingredient(e.Target.Ingredient).MarkValidatedOutput(databaseKey, e.Target.Key)
	}
}

// deepVerify walks old's recorded dependencies (and, for a Derived origin,
// its recorded outputs) to decide whether it is still valid in the current
// revision, recursively verifying (and possibly re-executing) every input
// it names. It never re-executes the query identified by key itself — that
// is the caller's (fetch.go's) responsibility when deepVerify reports
// Changed.
func deepVerify[V any](ctx context.Context, db *Database, thread ThreadID, key DatabaseKeyIndex, memo *Memo[V]) (VerifyResult, error) {
	if shallowVerify(db, key, memo, false) {
		return VerifyResult{Changed: false}, nil
	}
	if memo.MayBeProvisional() {
		return VerifyResult{Changed: true}, nil
	}

	for {
		if db.Cancelled(ctx) {
			return VerifyResult{}, &RevisionCancelledError{Key: key}
		}

		var cycleHeads KeySet

		switch memo.Revisions.Origin.Kind {
		case OriginAssigned:
			return VerifyResult{Changed: true}, nil

		case OriginBaseInput, OriginFixpointInitial:
			return VerifyResult{Changed: false}, nil

		case OriginDerivedUntracked:
			return VerifyResult{Changed: true}, nil

		case OriginDerived:
			lastVerifiedAt := memo.VerifiedAt()
			for _, e := range memo.Revisions.Origin.Edges {
				switch e.Kind {
				case EdgeInput:
					res, err := db.Ingredient(e.Target.Ingredient).MaybeChangedAfter(ctx, thread, e.Target.Key, lastVerifiedAt)
					if err != nil {
						return VerifyResult{}, err
					}
					if res.Changed {
						return VerifyResult{Changed: true}, nil
					}
					cycleHeads = cycleHeads.Union(res.CycleHeads)
				case EdgeOutput:
					// Mark now, even though a later input in this same loop
					// may still force re-execution: if it does, re-execution
					// will produce the same output, since every input
					// checked so far was unchanged.
					db.Ingredient(e.Target.Ingredient).MarkValidatedOutput(key, e.Target.Key)
				}
			}

		default:
			return VerifyResult{Changed: true}, nil
		}

		selfIsHead := cycleHeads.Contains(key)
		remaining, _ := cycleHeads.WithRemoved(key)

		if remaining.Len() == 0 {
			memo.setVerifiedAt(db.Clock().Current())
		}
		if selfIsHead {
			// Our own provisional result was among the heads walked over;
			// loop once more now that dependents may have settled.
			continue
		}
		return VerifyResult{Changed: false, CycleHeads: remaining}, nil
	}
}
