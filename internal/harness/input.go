package harness

import (
	"context"
	"fmt"

	increment "github.com/joeycumines/go-increment"
)

// InputIngredient is a minimal in-memory base-input store. Values are set
// directly by a writer (Set) and never recomputed; reading one (Fetch)
// records a dependency edge on whatever query is currently executing on
// ctx's stack. Real ingredient kinds live outside the core; this one exists
// so the core can be tested end to end.
type InputIngredient[K comparable, V any] struct {
	db       *increment.Database
	index    increment.IngredientIndex
	table    *increment.MemoTable[V]
	sync     *increment.SyncTable
	interner *interner[K]
	equal    func(a, b V) bool
}

// NewInputIngredient registers a fresh InputIngredient on db. equal makes
// writes idempotent: setting a key to a value it already holds must not
// advance the revision clock.
func NewInputIngredient[K comparable, V any](db *increment.Database, equal func(a, b V) bool) *InputIngredient[K, V] {
	var ing *InputIngredient[K, V]
	db.RegisterIngredient(func(idx increment.IngredientIndex) increment.Ingredient {
		ing = &InputIngredient[K, V]{
			db:       db,
			index:    idx,
			table:    increment.NewMemoTable[V](),
			sync:     db.NewSyncTable(),
			interner: newInterner[K](),
			equal:    equal,
		}
		return ing
	})
	return ing
}

// Key returns the KeyIndex key has been (or will be, on first use) interned
// to, so tests can build a DatabaseKeyIndex for assertions.
func (in *InputIngredient[K, V]) Key(key K) increment.KeyIndex {
	return increment.KeyIndex(in.interner.intern(key))
}

// DatabaseKey returns the full DatabaseKeyIndex identifying key on this
// ingredient.
func (in *InputIngredient[K, V]) DatabaseKey(key K) increment.DatabaseKeyIndex {
	return increment.DatabaseKeyIndex{Ingredient: in.index, Key: in.Key(key)}
}

// Set publishes value for key, durability durability. If a value is already
// published and equal(old, value) holds, this is a no-op: the revision
// clock is not advanced. Otherwise the writer's revision is bumped and the
// new value is published with ChangedAt set to the new revision.
func (in *InputIngredient[K, V]) Set(key K, value V, durability increment.Durability) increment.Revision {
	idx := in.Key(key)
	if old, ok := in.table.Get(idx); ok {
		if oldValue, hasValue := old.Value(); hasValue && in.equal != nil && in.equal(oldValue, value) {
			return in.db.Clock().Current()
		}
	}
	rev := in.db.AdvanceRevision(durability)
	memo := increment.NewMemo(value, rev, increment.QueryRevisions{
		ChangedAt:  rev,
		Durability: durability,
		Origin:     increment.QueryOrigin{Kind: increment.OriginBaseInput},
	})
	in.table.Insert(idx, memo)
	return rev
}

// Fetch returns the value currently published for key, reporting a read
// edge against whatever query is executing on ctx's stack (a no-op if
// nothing is). Returns an error if key has never been Set: reading an unset
// input is always a test-authoring bug in this harness, which (unlike a
// real input ingredient) has no notion of a default value.
func (in *InputIngredient[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	idx := in.Key(key)
	memo, ok := in.table.Get(idx)
	if !ok {
		var zero V
		return zero, fmt.Errorf("harness: input %v was never set", key)
	}
	value, _ := memo.Value()
	increment.ReportRead(ctx, in.DatabaseKey(key), memo.Revisions.Durability, memo.Revisions.ChangedAt, nil)
	return value, nil
}

// --- increment.Ingredient ---

func (in *InputIngredient[K, V]) Index() increment.IngredientIndex { return in.index }

// MaybeChangedAfter compares the stored ChangedAt against since: base
// inputs are never re-verified or recomputed, only compared. This is what
// a dependent's deep verification calls into for each recorded Input edge.
func (in *InputIngredient[K, V]) MaybeChangedAfter(_ context.Context, _ increment.ThreadID, key increment.KeyIndex, since increment.Revision) (increment.VerifyResult, error) {
	memo, ok := in.table.Get(key)
	if !ok {
		return increment.VerifyResult{Changed: true}, nil
	}
	return increment.VerifyResult{Changed: memo.Revisions.ChangedAt > since}, nil
}

// IsVerifiedFinal is always true: a base input is never provisional.
func (in *InputIngredient[K, V]) IsVerifiedFinal(increment.KeyIndex) bool { return true }

// CycleStrategyKind: inputs never participate in cycles as a head.
func (in *InputIngredient[K, V]) CycleStrategyKind() increment.CycleStrategy {
	return increment.CyclePanic
}

func (in *InputIngredient[K, V]) SyncTable() *increment.SyncTable { return in.sync }

// MarkValidatedOutput/RemoveStaleOutput: inputs are never the output of
// another query (that's a tracked-struct ingredient's concern, out of
// scope for this harness), so both are no-ops.
func (in *InputIngredient[K, V]) MarkValidatedOutput(increment.DatabaseKeyIndex, increment.KeyIndex) {
}
func (in *InputIngredient[K, V]) RemoveStaleOutput(increment.DatabaseKeyIndex, increment.KeyIndex) {}

// RequiresResetForNewRevision: inputs rely purely on ChangedAt/durability
// comparisons; they need no full-table reset on revision advance.
func (in *InputIngredient[K, V]) RequiresResetForNewRevision() bool { return false }
func (in *InputIngredient[K, V]) ResetForNewRevision()              {}
