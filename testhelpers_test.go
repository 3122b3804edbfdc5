package increment

import "context"

// fakeIngredient is a minimal, fully-controllable increment.Ingredient used
// across this package's unit tests to exercise Database/verify/executor/cycle
// machinery without pulling in internal/harness. Function fields default to
// sensible zero-value behavior (unchanged, verified-final, no cycle) when nil.
type fakeIngredient struct {
	index IngredientIndex
	sync  *SyncTable

	needsReset bool
	resetCalls int

	cycleKind CycleStrategy

	maybeChangedAfterFunc func(ctx context.Context, thread ThreadID, key KeyIndex, since Revision) (VerifyResult, error)
	isVerifiedFinalFunc   func(key KeyIndex) bool

	markValidatedCalls []DatabaseKeyIndex
	removeStaleCalls   []DatabaseKeyIndex
}

func newFakeIngredient(idx IngredientIndex) *fakeIngredient {
	return &fakeIngredient{index: idx, sync: NewSyncTable(newWaitForGraph())}
}

func (f *fakeIngredient) Index() IngredientIndex { return f.index }

func (f *fakeIngredient) MaybeChangedAfter(ctx context.Context, thread ThreadID, key KeyIndex, since Revision) (VerifyResult, error) {
	if f.maybeChangedAfterFunc != nil {
		return f.maybeChangedAfterFunc(ctx, thread, key, since)
	}
	return VerifyResult{Changed: false}, nil
}

func (f *fakeIngredient) IsVerifiedFinal(key KeyIndex) bool {
	if f.isVerifiedFinalFunc != nil {
		return f.isVerifiedFinalFunc(key)
	}
	return true
}

func (f *fakeIngredient) CycleStrategyKind() CycleStrategy { return f.cycleKind }

func (f *fakeIngredient) SyncTable() *SyncTable { return f.sync }

func (f *fakeIngredient) MarkValidatedOutput(databaseKey DatabaseKeyIndex, key KeyIndex) {
	f.markValidatedCalls = append(f.markValidatedCalls, databaseKey)
}

func (f *fakeIngredient) RemoveStaleOutput(databaseKey DatabaseKeyIndex, key KeyIndex) {
	f.removeStaleCalls = append(f.removeStaleCalls, databaseKey)
}

func (f *fakeIngredient) RequiresResetForNewRevision() bool { return f.needsReset }

func (f *fakeIngredient) ResetForNewRevision() { f.resetCalls++ }
