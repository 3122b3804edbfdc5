package increment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFixpoint_NoSelfCycle_PublishesDirectly(t *testing.T) {
	db := newTestDatabase(t)
	table := NewMemoTable[int]()
	key := DatabaseKeyIndex{Ingredient: 0, Key: 1}
	ctx := withThreadID(context.Background(), 1)
	ctx, _ = queryStackFromContext(ctx)

	cfg := &QueryConfig[int, int]{
		Execute: func(ctx context.Context, db *Database, input int) (int, error) {
			return input * 2, nil
		},
	}

	memo, err := runFixpoint[int, int](ctx, db, table, key, cfg, 21, nil)
	require.NoError(t, err)
	value, ok := memo.Value()
	require.True(t, ok)
	assert.Equal(t, 42, value)
	assert.True(t, memo.VerifiedFinal())
}

func TestRunFixpoint_ConvergesViaEqualValue(t *testing.T) {
	db := newTestDatabase(t)
	table := NewMemoTable[int]()
	key := DatabaseKeyIndex{Ingredient: 0, Key: 1}
	ctx := withThreadID(context.Background(), 1)
	ctx, _ = queryStackFromContext(ctx)

	// Seed the FixpointInitial placeholder the way fetch.go's self-claim
	// path would, so runFixpoint sees a lastProvisional to compare against.
	initial := NewMemo(0, db.Clock().Current(), fixpointInitialRevisions(key, db.Clock().Current()))
	table.Insert(key.Key, initial)

	calls := 0
	cfg := &QueryConfig[int, int]{
		ValuesEqual: func(a, b int) bool { return a == b },
		CycleInitial: func(key int) int {
			return 0
		},
		Cycle: CycleFixpoint,
		Execute: func(ctx context.Context, db *Database, input int) (int, error) {
			calls++
			// Observe itself as a cycle head every iteration, converging to 5.
			_, stack := queryStackFromContext(ctx)
			frame, _ := stack.current()
			frame.heads = frame.heads.Union(NewKeySet(key))
			if calls == 1 {
				return 3, nil
			}
			return 5, nil
		},
		RecoverFromCycle: func(db *Database, info CycleInfo, key int) CycleRecovery[int] {
			return Iterate[int]()
		},
	}

	memo, err := runFixpoint[int, int](ctx, db, table, key, cfg, 0, nil)
	require.NoError(t, err)
	value, ok := memo.Value()
	require.True(t, ok)
	assert.Equal(t, 5, value)
	assert.True(t, memo.VerifiedFinal())
	assert.GreaterOrEqual(t, calls, 2)
}

func TestRunFixpoint_FallbackRunsOneMoreIterationThenFinalizes(t *testing.T) {
	db := newTestDatabase(t)
	table := NewMemoTable[int]()
	key := DatabaseKeyIndex{Ingredient: 0, Key: 1}
	ctx := withThreadID(context.Background(), 1)
	ctx, _ = queryStackFromContext(ctx)

	initial := NewMemo(0, db.Clock().Current(), fixpointInitialRevisions(key, db.Clock().Current()))
	table.Insert(key.Key, initial)

	// Each execution reads the last published provisional and increments
	// it, so it never converges on its own; recovery falls back to 99 on
	// the first consultation. The pass after the fallback reads 99,
	// produces 100, and that result is final.
	cfg := &QueryConfig[int, int]{
		ValuesEqual: func(a, b int) bool { return a == b },
		Cycle:       CycleFixpoint,
		Execute: func(ctx context.Context, db *Database, input int) (int, error) {
			_, stack := queryStackFromContext(ctx)
			frame, _ := stack.current()
			frame.heads = frame.heads.Union(NewKeySet(key))
			prev, _ := table.Get(key.Key)
			prevValue, _ := prev.Value()
			return prevValue + 1, nil
		},
		RecoverFromCycle: func(db *Database, info CycleInfo, key int) CycleRecovery[int] {
			return Fallback(99)
		},
	}

	memo, err := runFixpoint[int, int](ctx, db, table, key, cfg, 0, nil)
	require.NoError(t, err)
	value, ok := memo.Value()
	require.True(t, ok)
	assert.Equal(t, 100, value, "one more iteration runs against the fallback before finalizing")
	assert.Equal(t, OriginDerivedUntracked, memo.Revisions.Origin.Kind)
	assert.True(t, memo.VerifiedFinal())
}

func TestRunFixpoint_NoRecoveryCallback_ReturnsAssertionViolation(t *testing.T) {
	db := newTestDatabase(t)
	table := NewMemoTable[int]()
	key := DatabaseKeyIndex{Ingredient: 0, Key: 1}
	ctx := withThreadID(context.Background(), 1)
	ctx, _ = queryStackFromContext(ctx)

	initial := NewMemo(0, db.Clock().Current(), fixpointInitialRevisions(key, db.Clock().Current()))
	table.Insert(key.Key, initial)

	cfg := &QueryConfig[int, int]{
		ValuesEqual: func(a, b int) bool { return false },
		Cycle:       CycleFixpoint,
		Execute: func(ctx context.Context, db *Database, input int) (int, error) {
			_, stack := queryStackFromContext(ctx)
			frame, _ := stack.current()
			frame.heads = frame.heads.Union(NewKeySet(key))
			return 1, nil
		},
	}

	_, err := runFixpoint[int, int](ctx, db, table, key, cfg, 0, nil)
	require.Error(t, err)
	var av *AssertionViolationError
	assert.ErrorAs(t, err, &av)
}

func TestRunFixpoint_ExceedsIterationCap(t *testing.T) {
	db, err := NewDatabase(WithMaxCycleIterations(2))
	require.NoError(t, err)
	table := NewMemoTable[int]()
	key := DatabaseKeyIndex{Ingredient: 0, Key: 1}
	ctx := withThreadID(context.Background(), 1)
	ctx, _ = queryStackFromContext(ctx)

	initial := NewMemo(0, db.Clock().Current(), fixpointInitialRevisions(key, db.Clock().Current()))
	table.Insert(key.Key, initial)

	calls := 0
	cfg := &QueryConfig[int, int]{
		ValuesEqual: func(a, b int) bool { return false },
		Cycle:       CycleFixpoint,
		Execute: func(ctx context.Context, db *Database, input int) (int, error) {
			calls++
			_, stack := queryStackFromContext(ctx)
			frame, _ := stack.current()
			frame.heads = frame.heads.Union(NewKeySet(key))
			return calls, nil
		},
		RecoverFromCycle: func(db *Database, info CycleInfo, key int) CycleRecovery[int] {
			return Iterate[int]()
		},
	}

	_, err = runFixpoint[int, int](ctx, db, table, key, cfg, 0, nil)
	require.Error(t, err)
	var overflow *IterationOverflowError
	assert.ErrorAs(t, err, &overflow)
}
