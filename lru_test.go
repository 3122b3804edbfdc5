package increment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_NoEvictionUnderCapacity(t *testing.T) {
	l := NewLRU(3)
	_, ok := l.RecordUse(1)
	assert.False(t, ok)
	_, ok = l.RecordUse(2)
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	l := NewLRU(2)
	l.RecordUse(1)
	l.RecordUse(2)

	evicted, ok := l.RecordUse(3)
	assert.True(t, ok)
	assert.Equal(t, KeyIndex(1), evicted)
}

func TestLRU_ReuseMovesToBack(t *testing.T) {
	l := NewLRU(2)
	l.RecordUse(1)
	l.RecordUse(2)
	// Touch 1 again, making 2 the least-recently-used.
	l.RecordUse(1)

	evicted, ok := l.RecordUse(3)
	assert.True(t, ok)
	assert.Equal(t, KeyIndex(2), evicted)
}

func TestLRU_CapacityZeroDisablesEviction(t *testing.T) {
	l := NewLRU(0)
	for i := KeyIndex(0); i < 10; i++ {
		_, ok := l.RecordUse(i)
		assert.False(t, ok)
	}
}

func TestLRU_SetCapacityZeroClears(t *testing.T) {
	l := NewLRU(2)
	l.RecordUse(1)
	l.RecordUse(2)

	l.SetCapacity(0)
	_, ok := l.RecordUse(3)
	assert.False(t, ok)

	l.SetCapacity(2)
	l.RecordUse(4)
	_, ok = l.RecordUse(5)
	assert.False(t, ok, "clearing capacity drops prior bookkeeping entirely")
}
