package increment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testInput and testDerived are minimal, self-contained Ingredient
// implementations used only by this file's Fetch integration tests, kept
// deliberately simpler than internal/harness's versions (identity key
// mapping, no interning) so Fetch's orchestration can be exercised without
// depending on that package.

type testInput[V any] struct {
	idx   IngredientIndex
	db    *Database
	table *MemoTable[V]
	equal func(a, b V) bool
}

func newTestInput[V any](db *Database, equal func(a, b V) bool) *testInput[V] {
	var in *testInput[V]
	db.RegisterIngredient(func(idx IngredientIndex) Ingredient {
		in = &testInput[V]{idx: idx, db: db, table: NewMemoTable[V](), equal: equal}
		return in
	})
	return in
}

func (in *testInput[V]) DatabaseKey(key KeyIndex) DatabaseKeyIndex {
	return DatabaseKeyIndex{Ingredient: in.idx, Key: key}
}

func (in *testInput[V]) Set(key KeyIndex, value V, durability Durability) Revision {
	if old, ok := in.table.Get(key); ok {
		if oldValue, hasValue := old.Value(); hasValue && in.equal != nil && in.equal(oldValue, value) {
			return in.db.Clock().Current()
		}
	}
	rev := in.db.AdvanceRevision(durability)
	in.table.Insert(key, NewMemo(value, rev, QueryRevisions{ChangedAt: rev, Durability: durability, Origin: QueryOrigin{Kind: OriginBaseInput}}))
	return rev
}

func (in *testInput[V]) Fetch(ctx context.Context, key KeyIndex) (V, error) {
	var zero V
	memo, ok := in.table.Get(key)
	if !ok {
		return zero, &AssertionViolationError{Message: "input never set"}
	}
	value, _ := memo.Value()
	ReportRead(ctx, in.DatabaseKey(key), memo.Revisions.Durability, memo.Revisions.ChangedAt, nil)
	return value, nil
}

func (in *testInput[V]) Index() IngredientIndex { return in.idx }

func (in *testInput[V]) MaybeChangedAfter(ctx context.Context, thread ThreadID, key KeyIndex, since Revision) (VerifyResult, error) {
	memo, ok := in.table.Get(key)
	if !ok {
		return VerifyResult{Changed: true}, nil
	}
	return VerifyResult{Changed: memo.Revisions.ChangedAt > since}, nil
}

func (in *testInput[V]) IsVerifiedFinal(key KeyIndex) bool              { return true }
func (in *testInput[V]) CycleStrategyKind() CycleStrategy               { return CyclePanic }
func (in *testInput[V]) SyncTable() *SyncTable                          { return nil }
func (in *testInput[V]) MarkValidatedOutput(DatabaseKeyIndex, KeyIndex) {}
func (in *testInput[V]) RemoveStaleOutput(DatabaseKeyIndex, KeyIndex)   {}
func (in *testInput[V]) RequiresResetForNewRevision() bool              { return false }
func (in *testInput[V]) ResetForNewRevision()                           {}

type testDerived[V any] struct {
	idx   IngredientIndex
	db    *Database
	table *MemoTable[V]
	sync  *SyncTable
	lru   *LRU
	cfg   *QueryConfig[KeyIndex, V]
}

func newTestDerived[V any](db *Database, lruCapacity int, cfg *QueryConfig[KeyIndex, V]) *testDerived[V] {
	var d *testDerived[V]
	db.RegisterIngredient(func(idx IngredientIndex) Ingredient {
		d = &testDerived[V]{idx: idx, db: db, table: NewMemoTable[V](), sync: db.NewSyncTable(), lru: NewLRU(lruCapacity), cfg: cfg}
		return d
	})
	return d
}

func (d *testDerived[V]) Fetch(ctx context.Context, key KeyIndex) (V, error) {
	return Fetch[KeyIndex, V](ctx, d.db, d.idx, d.table, d.sync, d.lru, d.cfg, key, key)
}

func (d *testDerived[V]) Index() IngredientIndex { return d.idx }

func (d *testDerived[V]) MaybeChangedAfter(ctx context.Context, thread ThreadID, key KeyIndex, since Revision) (VerifyResult, error) {
	ctx = WithThreadID(ctx, thread)
	if _, err := d.Fetch(ctx, key); err != nil {
		return VerifyResult{}, err
	}
	memo, _ := d.table.Get(key)
	return VerifyResult{Changed: memo.Revisions.ChangedAt > since, CycleHeads: memo.CycleHeads()}, nil
}

func (d *testDerived[V]) IsVerifiedFinal(key KeyIndex) bool {
	memo, ok := d.table.Get(key)
	if !ok {
		return true
	}
	return memo.VerifiedFinal()
}

func (d *testDerived[V]) CycleStrategyKind() CycleStrategy               { return d.cfg.Cycle }
func (d *testDerived[V]) SyncTable() *SyncTable                          { return d.sync }
func (d *testDerived[V]) MarkValidatedOutput(DatabaseKeyIndex, KeyIndex) {}
func (d *testDerived[V]) RemoveStaleOutput(DatabaseKeyIndex, KeyIndex)   {}
func (d *testDerived[V]) RequiresResetForNewRevision() bool              { return false }
func (d *testDerived[V]) ResetForNewRevision()                           {}

func TestFetch_ColdThenHot_ExecutesOnce(t *testing.T) {
	db := newTestDatabase(t)
	var calls int
	derived := newTestDerived(db, 0, &QueryConfig[KeyIndex, int]{
		ValuesEqual: func(a, b int) bool { return a == b },
		Execute: func(ctx context.Context, db *Database, input KeyIndex) (int, error) {
			calls++
			return int(input) * 10, nil
		},
	})

	v1, err := derived.Fetch(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 40, v1)

	v2, err := derived.Fetch(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 40, v2)
	assert.Equal(t, 1, calls, "hot path must not re-execute")
}

func TestFetch_DependencyChainRecomputesOnInputChange(t *testing.T) {
	db := newTestDatabase(t)
	input := newTestInput[int](db, func(a, b int) bool { return a == b })

	var calls int
	derived := newTestDerived(db, 0, &QueryConfig[KeyIndex, int]{
		ValuesEqual: func(a, b int) bool { return a == b },
		Execute: func(ctx context.Context, db *Database, key KeyIndex) (int, error) {
			calls++
			v, err := input.Fetch(ctx, key)
			if err != nil {
				return 0, err
			}
			return v + 1, nil
		},
	})

	input.Set(0, 10, Low)

	v, err := derived.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 11, v)
	assert.Equal(t, 1, calls)

	input.Set(0, 20, Low)
	v, err = derived.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 21, v)
	assert.Equal(t, 2, calls, "changed input forces recompute")
}

func TestFetch_DirectInputReadRecordsDependency(t *testing.T) {
	db := newTestDatabase(t)
	input := newTestInput[int](db, func(a, b int) bool { return a == b })
	input.Set(0, 7, Low)

	var calls int
	derived := newTestDerived(db, 0, &QueryConfig[KeyIndex, int]{
		ValuesEqual: func(a, b int) bool { return a == b },
		Execute: func(ctx context.Context, db *Database, key KeyIndex) (int, error) {
			calls++
			v, err := input.Fetch(ctx, key)
			if err != nil {
				return 0, err
			}
			return v * 2, nil
		},
	})

	v, err := derived.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 14, v)

	// Unrelated Low write still bumps the revision; a direct ReportRead-only
	// dependency was recorded as an Input edge, so deep verification walks it.
	input.Set(1, 0, Low)
	v, err = derived.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 14, v)
	assert.Equal(t, 1, calls, "unchanged input must not force recompute")
}

func TestFetch_SelfCyclePanicStrategyReturnsCycleError(t *testing.T) {
	db := newTestDatabase(t)
	var derived *testDerived[int]
	derived = newTestDerived(db, 0, &QueryConfig[KeyIndex, int]{
		Cycle: CyclePanic,
		Execute: func(ctx context.Context, db *Database, key KeyIndex) (int, error) {
			return derived.Fetch(ctx, key)
		},
	})

	_, err := derived.Fetch(context.Background(), 0)
	require.Error(t, err)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestFetch_SelfCycleFixpointConverges(t *testing.T) {
	db := newTestDatabase(t)
	var derived *testDerived[int]
	derived = newTestDerived(db, 0, &QueryConfig[KeyIndex, int]{
		Cycle:       CycleFixpoint,
		ValuesEqual: func(a, b int) bool { return a == b },
		CycleInitial: func(key KeyIndex) int {
			return 0
		},
		Execute: func(ctx context.Context, db *Database, key KeyIndex) (int, error) {
			prev, err := derived.Fetch(ctx, key)
			if err != nil {
				return 0, err
			}
			if prev >= 5 {
				return prev, nil
			}
			return prev + 1, nil
		},
		RecoverFromCycle: func(db *Database, info CycleInfo, key KeyIndex) CycleRecovery[int] {
			return Iterate[int]()
		},
	})

	v, err := derived.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}
