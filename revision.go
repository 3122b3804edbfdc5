package increment

import "sync/atomic"

// Revision is a monotonically increasing logical clock value. The zero
// Revision is valid and represents "before any write has occurred".
type Revision uint64

// Durability is an ordered stability class assigned to base inputs and
// inherited (as a minimum) by every memo derived from them. Queries that
// only ever read High durability inputs can skip verification cheaply: the
// verifier only has to check whether anything of at least that durability
// has changed since the memo was last verified.
type Durability uint8

const (
	// Low is the default durability: assume it may change on every revision.
	Low Durability = iota
	Medium
	High

	numDurabilities = int(High) + 1
)

func (d Durability) String() string {
	switch d {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	default:
		return "Durability(?)"
	}
}

// minDurability returns the lesser of two durabilities (queries inherit the minimum
// durability of their inputs).
func minDurability(a, b Durability) Durability {
	if a < b {
		return a
	}
	return b
}

func maxDurability(a, b Durability) Durability {
	if a > b {
		return a
	}
	return b
}

// RevisionClock is the single source of truth for "what revision is it" and
// "when did a write of at least durability d last happen". It is advanced
// only by a writer holding exclusive access to the Database (single writer,
// many readers).
type RevisionClock struct {
	current     atomic.Uint64
	lastChanged [numDurabilities]atomic.Uint64
}

// newRevisionClock returns a clock starting at revision 1, reserving
// revision 0 for "never verified"/zero-value memos.
func newRevisionClock() *RevisionClock {
	c := &RevisionClock{}
	c.current.Store(1)
	return c
}

// Current returns the current revision. Safe for concurrent readers.
func (c *RevisionClock) Current() Revision {
	return Revision(c.current.Load())
}

// LastChanged returns the most recent revision at which an input of this
// durability or a higher one was written (a write stamps every durability
// at or below its own). See RecordWrite.
func (c *RevisionClock) LastChanged(d Durability) Revision {
	return Revision(c.lastChanged[d].Load())
}

// RecordWrite advances the current revision and stamps the last-changed
// revision for every durability <= d (a write of a given durability also
// invalidates verification shortcuts for less durable queries, since those
// transitively may depend on it). Must only be called by the writer.
//
// Returns the new current revision.
func (c *RevisionClock) RecordWrite(d Durability) Revision {
	next := c.current.Add(1)
	for i := Low; i <= d; i++ {
		c.lastChanged[i].Store(next)
	}
	return Revision(next)
}
