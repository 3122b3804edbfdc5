package harness

import (
	"context"

	increment "github.com/joeycumines/go-increment"
)

// DerivedIngredient is a minimal in-memory derived-query store: one
// DerivedIngredient instantiates one increment.QueryConfig[K, V] across
// every key of type K, reduced to exactly what this repo's own tests need
// to drive the core end to end.
type DerivedIngredient[K comparable, V any] struct {
	db       *increment.Database
	index    increment.IngredientIndex
	table    *increment.MemoTable[V]
	sync     *increment.SyncTable
	lru      *increment.LRU
	interner *interner[K]
	cfg      *increment.QueryConfig[K, V]
}

// NewDerivedIngredient registers a fresh DerivedIngredient on db, backed by
// cfg and an LRU of the given capacity (0 disables eviction for this
// ingredient; negative means "use the database's WithLRUCapacity default").
func NewDerivedIngredient[K comparable, V any](db *increment.Database, lruCapacity int, cfg *increment.QueryConfig[K, V]) *DerivedIngredient[K, V] {
	if lruCapacity < 0 {
		lruCapacity = db.DefaultLRUCapacity()
	}
	var ing *DerivedIngredient[K, V]
	db.RegisterIngredient(func(idx increment.IngredientIndex) increment.Ingredient {
		ing = &DerivedIngredient[K, V]{
			db:       db,
			index:    idx,
			table:    increment.NewMemoTable[V](),
			sync:     db.NewSyncTable(),
			lru:      increment.NewLRU(lruCapacity),
			interner: newInterner[K](),
			cfg:      cfg,
		}
		return ing
	})
	return ing
}

// Key returns the KeyIndex key has been (or will be, on first use) interned
// to.
func (d *DerivedIngredient[K, V]) Key(key K) increment.KeyIndex {
	return increment.KeyIndex(d.interner.intern(key))
}

// DatabaseKey returns the full DatabaseKeyIndex identifying key on this
// ingredient.
func (d *DerivedIngredient[K, V]) DatabaseKey(key K) increment.DatabaseKeyIndex {
	return increment.DatabaseKeyIndex{Ingredient: d.index, Key: d.Key(key)}
}

// SetLRUCapacity overrides this ingredient's LRU capacity at runtime.
func (d *DerivedIngredient[K, V]) SetLRUCapacity(n int) { d.lru.SetCapacity(n) }

// Fetch resolves key's value through the fetch orchestrator (hot path, cold
// path, claim, verify-or-execute, cycle engine, LRU — fetch.go ties all of
// them together).
func (d *DerivedIngredient[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	return increment.Fetch(ctx, d.db, d.index, d.table, d.sync, d.lru, d.cfg, d.Key(key), key)
}

// Peek returns the memo currently published for key without fetching
// (for assertions in tests — e.g. checking ChangedAt/Durability/CycleHeads
// directly rather than only the returned value).
func (d *DerivedIngredient[K, V]) Peek(key K) (*increment.Memo[V], bool) {
	return d.table.Get(d.Key(key))
}

// --- increment.Ingredient ---

func (d *DerivedIngredient[K, V]) Index() increment.IngredientIndex { return d.index }

// MaybeChangedAfter ensures key's memo is current (via Fetch, which
// transparently re-verifies or re-executes as needed, under the same
// logical caller identity `thread` already established higher up the call
// tree) and then compares its ChangedAt against since. This is the one
// place an Ingredient implementation has to bridge deep verification's
// per-edge question ("did this change after since?") into the
// orchestrator's "make sure it's current" operation — re-deriving
// shallow/deep verification here would just duplicate fetch.go.
func (d *DerivedIngredient[K, V]) MaybeChangedAfter(ctx context.Context, thread increment.ThreadID, key increment.KeyIndex, since increment.Revision) (increment.VerifyResult, error) {
	ctx = increment.WithThreadID(ctx, thread)
	input := d.interner.lookup(uint64(key))
	if _, err := increment.Fetch(ctx, d.db, d.index, d.table, d.sync, d.lru, d.cfg, key, input); err != nil {
		return increment.VerifyResult{}, err
	}
	memo, ok := d.table.Get(key)
	if !ok {
		return increment.VerifyResult{Changed: true}, nil
	}
	return increment.VerifyResult{Changed: memo.Revisions.ChangedAt > since, CycleHeads: memo.CycleHeads()}, nil
}

// IsVerifiedFinal reports whether key's published memo is confirmed final.
func (d *DerivedIngredient[K, V]) IsVerifiedFinal(key increment.KeyIndex) bool {
	memo, ok := d.table.Get(key)
	if !ok {
		return false
	}
	return memo.VerifiedFinal()
}

func (d *DerivedIngredient[K, V]) CycleStrategyKind() increment.CycleStrategy { return d.cfg.Cycle }

func (d *DerivedIngredient[K, V]) SyncTable() *increment.SyncTable { return d.sync }

// MarkValidatedOutput/RemoveStaleOutput: this harness's derived queries
// never themselves appear as the Output edge of another query (there is no
// tracked-struct ingredient here for one to own), so both are no-ops.
func (d *DerivedIngredient[K, V]) MarkValidatedOutput(increment.DatabaseKeyIndex, increment.KeyIndex) {
}
func (d *DerivedIngredient[K, V]) RemoveStaleOutput(increment.DatabaseKeyIndex, increment.KeyIndex) {
}

// RequiresResetForNewRevision: durability-based shallow verification is
// sufficient; no full-table reset needed on revision advance.
func (d *DerivedIngredient[K, V]) RequiresResetForNewRevision() bool { return false }
func (d *DerivedIngredient[K, V]) ResetForNewRevision()              {}
