package increment

import "sync"

// MemoTable is a per-ingredient store mapping KeyIndex to the memo
// currently published for that key. All operations are safe for concurrent
// use; Get is lock-free (backed by sync.Map), Insert is an atomic
// substitution of the slot's pointer. One MemoTable exists per ingredient,
// so unrelated ingredients never contend on the same map.
type MemoTable[V any] struct {
	m sync.Map // KeyIndex -> *Memo[V]
}

// NewMemoTable returns an empty MemoTable.
func NewMemoTable[V any]() *MemoTable[V] {
	return &MemoTable[V]{}
}

// Get returns the memo currently published for key, if any. Lock-free:
// concurrent Insert calls never produce a torn read, only a slightly stale
// one.
func (t *MemoTable[V]) Get(key KeyIndex) (*Memo[V], bool) {
	v, ok := t.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Memo[V]), true
}

// Insert atomically publishes memo as the current value for key, returning
// whatever was previously published (if anything).
func (t *MemoTable[V]) Insert(key KeyIndex, memo *Memo[V]) (*Memo[V], bool) {
	old, loaded := t.m.Swap(key, memo)
	if !loaded {
		return nil, false
	}
	return old.(*Memo[V]), true
}

// InsertIfAbsent publishes memo only if nothing is currently published for
// key. Returns the memo actually published afterwards and whether a prior
// memo was already present (in which case memo was NOT published). Unlike
// Insert, this can never clobber a concurrently published memo, which
// matters when seeding a FixpointInitial placeholder without holding the
// key's claim.
func (t *MemoTable[V]) InsertIfAbsent(key KeyIndex, memo *Memo[V]) (*Memo[V], bool) {
	actual, loaded := t.m.LoadOrStore(key, memo)
	return actual.(*Memo[V]), loaded
}

// EvictValue replaces the memo for key with one whose value is absent but
// whose QueryRevisions (and verified_at stamp) are retained, provided the
// origin is evictable (Derived). Returns false (no-op) if there is no memo,
// or its origin cannot be reconstructed.
func (t *MemoTable[V]) EvictValue(key KeyIndex) bool {
	old, ok := t.Get(key)
	if !ok || !old.hasValue {
		return false
	}
	if !old.Revisions.Origin.Evictable() {
		return false
	}
	evicted := newEvictedMemo[V](old.VerifiedAt(), old.Revisions)
	// Preserve verified_final: eviction must not un-finalize a memo.
	if old.VerifiedFinal() {
		evicted.verifiedFinal.Store(true)
	}
	t.Insert(key, evicted)
	return true
}

// Reset clears every memo in the table. Used when an ingredient requires a
// full reset for a new revision.
func (t *MemoTable[V]) Reset() {
	t.m.Range(func(key, _ any) bool {
		t.m.Delete(key)
		return true
	})
}
