package increment

import "sync/atomic"

// Memo is the central cached record for one query instantiation: an
// optional value, an atomically-updated verification stamp, and the
// QueryRevisions metadata describing how it was produced.
//
// Memo[V] is never mutated in place except for VerifiedAt/VerifiedFinal,
// which are atomics: every other field is fixed at construction and a new
// Memo replaces the old one wholesale (see MemoTable.Insert).
type Memo[V any] struct {
	// value holds the cached output. hasValue distinguishes "evicted, no
	// value" from a legitimately zero V.
	value    V
	hasValue bool

	verifiedAt    atomic.Uint64
	verifiedFinal atomic.Bool

	Revisions QueryRevisions
}

// NewMemo constructs a Memo with the given value (present), verified at
// revisionNow, and the given revisions. VerifiedFinal starts true iff the
// revisions carry no cycle heads — a memo that was never provisional in the
// first place needs no later promotion.
func NewMemo[V any](value V, revisionNow Revision, revisions QueryRevisions) *Memo[V] {
	m := &Memo[V]{
		value:     value,
		hasValue:  true,
		Revisions: revisions,
	}
	m.verifiedAt.Store(uint64(revisionNow))
	m.verifiedFinal.Store(revisions.CycleHeads.Len() == 0)
	return m
}

// newEvictedMemo constructs a Memo with no value, retaining revisions and
// the prior verified_at stamp (LRU eviction never touches verification
// state, only the value slot).
func newEvictedMemo[V any](revisionWhenEvicted Revision, revisions QueryRevisions) *Memo[V] {
	m := &Memo[V]{Revisions: revisions}
	m.verifiedAt.Store(uint64(revisionWhenEvicted))
	m.verifiedFinal.Store(revisions.CycleHeads.Len() == 0)
	return m
}

// Value returns the cached value and whether one is present (false after
// eviction).
func (m *Memo[V]) Value() (V, bool) {
	return m.value, m.hasValue
}

// VerifiedAt returns the revision at which this memo was last confirmed
// valid.
func (m *Memo[V]) VerifiedAt() Revision {
	return Revision(m.verifiedAt.Load())
}

// setVerifiedAt stores a new verified-at revision. Only ever moves forward
// in practice (callers only call this after a successful verification in
// the current revision), but no ordering is enforced here — callers are
// responsible.
func (m *Memo[V]) setVerifiedAt(r Revision) {
	m.verifiedAt.Store(uint64(r))
}

// VerifiedFinal reports whether this memo is confirmed to not be a
// provisional cycle result.
func (m *Memo[V]) VerifiedFinal() bool {
	return m.verifiedFinal.Load()
}

// markVerifiedFinal promotes the memo to verified-final. Promotion is
// monotonic: once true, a Memo is never reset to false. Returns whether
// this call performed the promotion (false if already final).
func (m *Memo[V]) markVerifiedFinal() bool {
	return m.verifiedFinal.CompareAndSwap(false, true)
}

// MayBeProvisional reports whether this memo might still depend on
// unresolved cycle heads (i.e. has not yet been confirmed final).
func (m *Memo[V]) MayBeProvisional() bool {
	return !m.VerifiedFinal()
}

// CycleHeads returns the cycle heads that should be propagated to
// dependent queries, or nil if this memo is not provisional.
func (m *Memo[V]) CycleHeads() KeySet {
	if m.MayBeProvisional() {
		return m.Revisions.CycleHeads
	}
	return nil
}

// CheckDurability reports whether this memo is known not to have changed,
// purely from the revision clock, without walking any edges: true iff no
// input of at least this memo's durability has changed since it was last
// verified.
func (m *Memo[V]) CheckDurability(clock *RevisionClock) bool {
	lastChanged := clock.LastChanged(m.Revisions.Durability)
	return lastChanged <= m.VerifiedAt()
}
