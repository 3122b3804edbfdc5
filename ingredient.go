package increment

import "context"

// VerifyResult is the outcome of asking an ingredient whether a given key's
// memoized value may have changed since a revision.
type VerifyResult struct {
	// Changed is true if the value differs (or might differ, for untracked
	// origins) from what was last observed.
	Changed bool
	// CycleHeads accumulates the provisional cycle heads walked over while
	// answering the question, so the caller can propagate them onto its own
	// in-progress memo.
	CycleHeads KeySet
}

// CycleStrategy is a per-query, statically-fixed choice of how the query
// behaves when it participates in a cycle.
type CycleStrategy uint8

const (
	// CyclePanic: the query has no recovery; a cycle involving it is a fatal
	// CycleError.
	CyclePanic CycleStrategy = iota
	// CycleFixpoint: the query provides an initial value and a recovery
	// function, allowing the engine to iterate to a fixpoint.
	CycleFixpoint
)

func (s CycleStrategy) String() string {
	if s == CycleFixpoint {
		return "Fixpoint"
	}
	return "Panic"
}

// CycleRecoveryAction tags the variant held by CycleRecovery.
type CycleRecoveryAction uint8

const (
	// ActionIterate: re-run the fixpoint with the just-computed value as the
	// next iteration's input.
	ActionIterate CycleRecoveryAction = iota
	// ActionFallback: publish FallbackValue as the next provisional, run one
	// more iteration against it, and finalize with that iteration's result,
	// with the final memo's Origin forced to OriginDerivedUntracked so it is
	// always re-verified from scratch in later revisions.
	ActionFallback
)

// CycleRecovery is the result of a Fixpoint query's recover_from_cycle
// callback for one iteration: either "keep iterating" or "stop here".
// Go has no sum types, so as with QueryOrigin, Action tags which field (if
// any) is meaningful.
type CycleRecovery[V any] struct {
	Action        CycleRecoveryAction
	FallbackValue V // only meaningful when Action == ActionFallback
}

// Iterate constructs a CycleRecovery directing the engine to continue.
func Iterate[V any]() CycleRecovery[V] {
	return CycleRecovery[V]{Action: ActionIterate}
}

// Fallback constructs a CycleRecovery directing the engine to adopt value
// as the next provisional; one further iteration runs against it and its
// result becomes the final (untracked) value.
func Fallback[V any](value V) CycleRecovery[V] {
	return CycleRecovery[V]{Action: ActionFallback, FallbackValue: value}
}

// CycleInfo describes the cycle a Fixpoint query is being asked to recover
// from: the full set of participating heads, and how many fixpoint
// iterations have run so far (1 on the first call).
type CycleInfo struct {
	Heads     KeySet
	Iteration int
}

// QueryConfig is the user-supplied definition of one Derived query type: how
// to compute a value from a key, how to compare successive values for
// backdating, and (for Fixpoint queries) how to seed and recover from a
// cycle. One QueryConfig backs one Ingredient implementation (see
// internal/harness.DerivedIngredient).
type QueryConfig[K comparable, V any] struct {
	// Execute computes the value for key. It must only read other queries
	// through Fetch (usually via an ingredient's own Fetch method, passing
	// ctx along) so the core can record dependency edges.
	Execute func(ctx context.Context, db *Database, key K) (V, error)

	// ValuesEqual compares two computed values for backdating purposes. A
	// reflect.DeepEqual-style default is deliberately NOT provided: callers
	// must supply this, since a correct default for an arbitrary V does not
	// exist in Go without reflection overhead on a hot path.
	ValuesEqual func(a, b V) bool

	// Cycle is the strategy this query uses when it participates in a
	// cycle. Defaults to CyclePanic (the zero value) if unset.
	Cycle CycleStrategy

	// CycleInitial returns the seed value used for the FixpointInitial
	// placeholder the first time key is found to participate in a cycle.
	// Required when Cycle == CycleFixpoint.
	CycleInitial func(key K) V

	// RecoverFromCycle is consulted after every fixpoint iteration whose
	// value differs from the previous provisional (the first iteration
	// included), to decide whether to iterate again or accept a fallback
	// value.
	// Required when Cycle == CycleFixpoint.
	RecoverFromCycle func(db *Database, info CycleInfo, key K) CycleRecovery[V]
}

// Ingredient is the narrow, non-generic capability surface the core
// dispatches through: a registry of Ingredient values lets Database operate
// over heterogeneously-typed queries (Memo[V] for differing V) without the
// core itself being generic. Every *harness.DerivedIngredient[K,V] and
// *harness.InputIngredient[K,V] implements this.
type Ingredient interface {
	// Index returns this ingredient's assigned IngredientIndex.
	Index() IngredientIndex

	// MaybeChangedAfter reports whether key's value may have changed since
	// since, verifying (and possibly recomputing) as needed. thread
	// identifies the logical caller, for claim/cycle bookkeeping.
	MaybeChangedAfter(ctx context.Context, thread ThreadID, key KeyIndex, since Revision) (VerifyResult, error)

	// IsVerifiedFinal reports whether key's current memo is confirmed not
	// to be a provisional cycle result.
	IsVerifiedFinal(key KeyIndex) bool

	// CycleStrategyKind returns the cycle strategy configured for this
	// ingredient's queries (uniform per ingredient).
	CycleStrategyKind() CycleStrategy

	// SyncTable returns the claim table used to serialize concurrent
	// executions of this ingredient's keys.
	SyncTable() *SyncTable

	// MarkValidatedOutput records that databaseKey (the query being
	// verified) still produces key as an output in the current revision,
	// without waiting for databaseKey to actually re-execute. Deep
	// verification calls this eagerly, mid-walk.
	MarkValidatedOutput(databaseKey DatabaseKeyIndex, key KeyIndex)

	// RemoveStaleOutput reports that databaseKey no longer produces key as
	// of the just-completed execution, so key's owning ingredient can
	// reclaim it.
	RemoveStaleOutput(databaseKey DatabaseKeyIndex, key KeyIndex)

	// RequiresResetForNewRevision reports whether this ingredient must be
	// told explicitly when the revision advances (inputs don't; most
	// derived ingredients don't either, relying on durability checks, but
	// an ingredient with no durability tracking of its own may).
	RequiresResetForNewRevision() bool

	// ResetForNewRevision is called by Database.AdvanceRevision for every
	// ingredient that returned true from RequiresResetForNewRevision.
	ResetForNewRevision()
}
