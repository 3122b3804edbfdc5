package increment

import (
	"context"
	"fmt"
	"sync"
)

// defaultMaxCycleIterations bounds fixpoint iteration before a Fixpoint
// query's cycle is abandoned as non-convergent.
const defaultMaxCycleIterations = 200

// Database is the root handle shared by every query: the revision clock,
// the ingredient registry, the process-wide wait-for graph used for cycle
// detection across ingredients, and the ambient logging/event/LRU
// configuration. Exactly one writer may call AdvanceRevision at a time;
// any number of readers may call Fetch concurrently.
type Database struct {
	clock *RevisionClock
	waits *waitForGraph

	mu          sync.RWMutex
	ingredients []Ingredient // index == IngredientIndex

	maxCycleIterations int
	lruCapacity        int
	eventSink          EventSink
	logger             Logger
}

// NewDatabase constructs an empty Database (no ingredients registered yet;
// callers register their Input/Derived ingredients via RegisterIngredient
// immediately after construction, before any Fetch call).
func NewDatabase(opts ...Option) (*Database, error) {
	cfg, err := resolveDatabaseOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Database{
		clock:              newRevisionClock(),
		waits:              newWaitForGraph(),
		maxCycleIterations: cfg.maxCycleIterations,
		lruCapacity:        cfg.lruCapacity,
		eventSink:          cfg.eventSink,
		logger:             cfg.logger,
	}, nil
}

// DefaultLRUCapacity returns the WithLRUCapacity value this Database was
// constructed with (0 when unset, meaning unbounded). Ingredient
// constructors consult this when the caller does not give them an explicit
// per-ingredient capacity.
func (db *Database) DefaultLRUCapacity() int { return db.lruCapacity }

// RegisterIngredient assigns the next IngredientIndex and stores ing under
// it. Must be called before any Fetch reaches ing; not safe to call
// concurrently with Fetch.
func (db *Database) RegisterIngredient(newIngredient func(IngredientIndex) Ingredient) Ingredient {
	db.mu.Lock()
	defer db.mu.Unlock()
	idx := IngredientIndex(len(db.ingredients))
	ing := newIngredient(idx)
	db.ingredients = append(db.ingredients, ing)
	return ing
}

// Ingredient returns the ingredient registered at idx. Panics if idx is out
// of range: an out-of-range IngredientIndex reaching here is always a bug
// (a DatabaseKeyIndex was fabricated or corrupted), never a legitimate
// runtime condition.
func (db *Database) Ingredient(idx IngredientIndex) Ingredient {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if int(idx) >= len(db.ingredients) {
		panic(fmt.Sprintf("increment: no ingredient registered at index %d", idx))
	}
	return db.ingredients[idx]
}

// Clock returns the Database's revision clock.
func (db *Database) Clock() *RevisionClock { return db.clock }

// NewSyncTable returns a SyncTable sharing this Database's wait-for graph.
// Every Ingredient that claims keys (i.e. every Derived ingredient) must use
// one constructed this way rather than an independent graph, since a cycle
// frequently spans more than one ingredient.
func (db *Database) NewSyncTable() *SyncTable { return NewSyncTable(db.waits) }

// Logger returns the Database's structured logger.
func (db *Database) Logger() Logger { return db.logger }

// EventSink returns the Database's configured event sink.
func (db *Database) EventSink() EventSink { return db.eventSink }

// emit fans ev out to both the logger and the event sink (logging.go).
func (db *Database) emit(ev Event) { logEvent(db.logger, db.eventSink, ev) }

// Cancelled reports whether ctx has been cancelled, the mechanism by which
// an in-flight reader notices a concurrent AdvanceRevision and unwinds with
// RevisionCancelledError, rather than observing torn state. Query functions
// that run long loops between reads should check this.
func (db *Database) Cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// AdvanceRevision is called by the single writer to commit a batch of
// writes to base inputs: it bumps the revision clock at the given
// durability, then gives every registered ingredient that asked for it
// (RequiresResetForNewRevision) a chance to reset derived state.
//
// Callers are responsible for ensuring no Fetch is concurrently in flight
// against ingredients being reset; the customary pattern (and the one the
// harness's test helpers use) is to derive readers' contexts from a
// cancellable parent and cancel it before calling AdvanceRevision.
func (db *Database) AdvanceRevision(d Durability) Revision {
	next := db.clock.RecordWrite(d)

	db.mu.RLock()
	ingredients := append([]Ingredient(nil), db.ingredients...)
	db.mu.RUnlock()

	for _, ing := range ingredients {
		if ing.RequiresResetForNewRevision() {
			ing.ResetForNewRevision()
		}
	}
	return next
}
