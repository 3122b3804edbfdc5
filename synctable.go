package increment

import (
	"context"
	"sync"
)

// WaitResult describes why a blocked waiter was released.
type WaitResult uint8

const (
	// Completed: the blocker released the claim normally.
	Completed WaitResult = iota
	// Panicked: the blocker's query function panicked or otherwise
	// aborted fatally; the fatal state fans out to every waiter.
	Panicked
)

// ClaimOutcome is the result of attempting SyncTable.Claim.
type ClaimOutcome uint8

const (
	// ClaimOutcomeClaimed: the slot was free; the caller now owns it via
	// the returned ClaimGuard and must release it (Guard.Release).
	ClaimOutcomeClaimed ClaimOutcome = iota
	// ClaimOutcomeCycle: the slot already names this thread (direct
	// self-reentry), or blocking on the current owner would close a cycle
	// in the wait-for graph. The caller is a cycle participant.
	ClaimOutcomeCycle
	// ClaimOutcomeRetry: another thread held the slot; we blocked until it
	// released, and the caller must restart its fetch from the top, since
	// a newer memo may now exist.
	ClaimOutcomeRetry
	// ClaimOutcomePanicked: another thread held the slot and released it
	// with Panicked; the fatal state fans out to every waiter, which must
	// re-raise rather than retry.
	ClaimOutcomePanicked
)

// The per-slot state packs 15 bits of thread id with an "anyone waiting"
// bit; zero is reserved for "no owner". The packing is a size optimization,
// not semantics: every access is guarded by the table mutex rather than
// relying on the packing for lock-freedom.
const anyoneWaitingBit uint16 = 0b1000_0000_0000_0000

type syncState uint16

func newSyncState(id ThreadID) syncState { return syncState(id) }

func (s syncState) isNone() bool        { return s == 0 }
func (s syncState) threadID() ThreadID  { return ThreadID(uint16(s) &^ anyoneWaitingBit) }
func (s syncState) anyoneWaiting() bool { return uint16(s)&anyoneWaitingBit != 0 }
func (s syncState) withAnyoneWaiting() syncState {
	return syncState(uint16(s) | anyoneWaitingBit)
}

// syncSlot is the live bookkeeping for one claimed key: the packed state
// plus the broadcast channel waiters park on.
type syncSlot struct {
	state  syncState
	ready  chan struct{}
	result WaitResult
}

// SyncTable coordinates at-most-one concurrent computation per key, for a
// single ingredient. Blocking waiters are released via a closed channel
// (the classic broadcast-via-close idiom, as in the GOPL concurrency-safe
// memoizer), combined with a process-wide wait-for graph so a claim that
// would deadlock instead reports ClaimOutcomeCycle.
type SyncTable struct {
	mu    sync.Mutex
	slots map[KeyIndex]*syncSlot
	waits *waitForGraph
}

// NewSyncTable returns an empty SyncTable sharing the given wait-for graph
// (one graph per Database, since cycles can span ingredients).
func NewSyncTable(waits *waitForGraph) *SyncTable {
	return &SyncTable{slots: make(map[KeyIndex]*syncSlot), waits: waits}
}

// ClaimGuard represents an active claim. The claim is released by calling
// Release exactly once, typically via defer.
type ClaimGuard struct {
	table *SyncTable
	key   KeyIndex
}

// Claim attempts to claim key for thread. See ClaimOutcome for the
// possible results. ctx is observed only while parked waiting for another
// thread's claim to release; a cancelled ctx unparks the caller with
// ClaimOutcomeRetry so the orchestrator can surface RevisionCancelled on
// its own terms (see Fetch).
func (t *SyncTable) Claim(ctx context.Context, thread ThreadID, databaseKey DatabaseKeyIndex) (ClaimOutcome, *ClaimGuard) {
	t.mu.Lock()
	slot, exists := t.slots[databaseKey.Key]
	if !exists || slot.state.isNone() {
		t.slots[databaseKey.Key] = &syncSlot{state: newSyncState(thread), ready: make(chan struct{})}
		t.mu.Unlock()
		return ClaimOutcomeClaimed, &ClaimGuard{table: t, key: databaseKey.Key}
	}

	owner := slot.state.threadID()
	if owner == thread {
		t.mu.Unlock()
		return ClaimOutcomeCycle, nil
	}

	ready, blocked := t.parkOn(slot, owner, thread)
	if !blocked {
		return ClaimOutcomeCycle, nil
	}
	defer t.waits.unblock(thread)

	select {
	case <-ready:
		// slot.result was stored before close(slot.ready), so this read is
		// ordered after the store.
		if slot.result == Panicked {
			return ClaimOutcomePanicked, nil
		}
		return ClaimOutcomeRetry, nil
	case <-ctx.Done():
		return ClaimOutcomeRetry, nil
	}
}

// WaitOutcome describes the result of SyncTable.WaitFor.
type WaitOutcome uint8

const (
	// WaitOutcomeReady: the key's slot is now free (or already was) —
	// whatever claimed it last has released, so a newer memo may exist.
	WaitOutcomeReady WaitOutcome = iota
	// WaitOutcomeCycle: waiting would deadlock (the slot is owned,
	// directly or transitively, by the calling thread itself). The caller
	// is a cycle participant and must not block.
	WaitOutcomeCycle
	// WaitOutcomePanicked: the blocker released with Panicked; the waiter
	// must re-raise the fatal state rather than restart.
	WaitOutcomePanicked
)

// WaitFor blocks until key's slot is free, without claiming it — used when
// propagating a provisional result that names a cycle head owned by
// another thread. Unlike Claim,
// a successful wait never hands back ownership: the caller is expected to
// restart its own fetch from the top.
func (t *SyncTable) WaitFor(ctx context.Context, thread ThreadID, key KeyIndex) WaitOutcome {
	t.mu.Lock()
	slot, exists := t.slots[key]
	if !exists || slot.state.isNone() {
		t.mu.Unlock()
		return WaitOutcomeReady
	}

	owner := slot.state.threadID()
	if owner == thread {
		t.mu.Unlock()
		return WaitOutcomeCycle
	}

	ready, blocked := t.parkOn(slot, owner, thread)
	if !blocked {
		return WaitOutcomeCycle
	}
	defer t.waits.unblock(thread)

	select {
	case <-ready:
		if slot.result == Panicked {
			return WaitOutcomePanicked
		}
	case <-ctx.Done():
	}
	return WaitOutcomeReady
}

// parkOn marks slot as having a waiter and registers thread's wait-for edge
// onto owner, reporting whether the caller should actually block (false
// means blocking would close a cycle in the wait-for graph — the caller
// must be released without having t.mu held, so this returns before the
// select). Must be called with t.mu held; unlocks it before returning.
func (t *SyncTable) parkOn(slot *syncSlot, owner, thread ThreadID) (ready <-chan struct{}, blocked bool) {
	slot.state = slot.state.withAnyoneWaiting()
	ch := slot.ready
	t.mu.Unlock()

	if t.waits.blockOrCycle(thread, owner) {
		return nil, false
	}
	return ch, true
}

// Release drops the claim, recording whether the computation completed or
// panicked, and wakes any waiters parked on this key.
func (g *ClaimGuard) Release(result WaitResult) {
	t := g.table
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.slots[g.key]
	delete(t.slots, g.key)
	if slot != nil && slot.state.anyoneWaiting() {
		slot.result = result
		close(slot.ready)
	}
}

// waitForGraph tracks, per thread, the single other thread it is currently
// blocked on, so a new blocking claim can be checked for cycles before
// parking. One graph is shared across every
// ingredient's SyncTable in a Database, since a cycle can span ingredients.
type waitForGraph struct {
	mu    sync.Mutex
	edges map[ThreadID]ThreadID
}

func newWaitForGraph() *waitForGraph {
	return &waitForGraph{edges: make(map[ThreadID]ThreadID)}
}

// blockOrCycle records that self is about to block on blocker. Returns true
// (without recording anything) if that would close a cycle in the wait-for
// graph, i.e. blocker already (transitively) waits on self.
func (g *waitForGraph) blockOrCycle(self, blocker ThreadID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for cur, ok := blocker, true; ok; cur, ok = g.edges[cur] {
		if cur == self {
			return true
		}
	}
	g.edges[self] = blocker
	return false
}

// unblock removes self's outgoing wait-for edge once it stops blocking
// (either because it observed completion, or gave up due to cancellation).
func (g *waitForGraph) unblock(self ThreadID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, self)
}
