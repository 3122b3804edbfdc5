package increment

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// IngredientIndex identifies one registered ingredient (query type or input
// kind) within a Database.
type IngredientIndex uint32

// KeyIndex identifies one key (argument tuple) within an ingredient. The
// core treats it as an opaque, comparable token; ingredients are
// responsible for interning their own keys into KeyIndex values.
type KeyIndex uint64

// DatabaseKeyIndex identifies one query instantiation: a specific key within
// a specific ingredient. It is the node identity used throughout the core
// (memo table keys, wait-for graph nodes, cycle-head sets) specifically so
// that cyclic dependency graphs can be represented without cyclic pointer
// ownership.
type DatabaseKeyIndex struct {
	Ingredient IngredientIndex
	Key        KeyIndex
}

func (k DatabaseKeyIndex) String() string {
	return fmt.Sprintf("%d:%d", k.Ingredient, k.Key)
}

// KeySet is a small set of DatabaseKeyIndex values, used for cycle-head
// tracking. The zero value is an empty, usable set.
type KeySet map[DatabaseKeyIndex]struct{}

// NewKeySet returns a KeySet containing the given keys.
func NewKeySet(keys ...DatabaseKeyIndex) KeySet {
	if len(keys) == 0 {
		return nil
	}
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Contains(k DatabaseKeyIndex) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Len() int { return len(s) }

// Clone returns a shallow copy (nil stays nil).
func (s KeySet) Clone() KeySet {
	if s == nil {
		return nil
	}
	out := make(KeySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Union returns the set union of s and other, without mutating either.
func (s KeySet) Union(other KeySet) KeySet {
	if len(s) == 0 {
		return other.Clone()
	}
	if len(other) == 0 {
		return s.Clone()
	}
	out := make(KeySet, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// WithRemoved returns a copy of s with k removed, and whether k was present.
func (s KeySet) WithRemoved(k DatabaseKeyIndex) (KeySet, bool) {
	if !s.Contains(k) {
		return s, false
	}
	out := make(KeySet, len(s)-1)
	for existing := range s {
		if existing != k {
			out[existing] = struct{}{}
		}
	}
	return out, true
}

// Slice returns the keys sorted by (Ingredient, Key), so that callers which
// walk cycle heads (propagate, validateProvisional) do so in a deterministic
// order — map iteration order would otherwise make the exact sequence of
// WaitFor/IsVerifiedFinal calls vary from run to run, which is needless
// nondeterminism for a single-process engine to expose.
func (s KeySet) Slice() []DatabaseKeyIndex {
	out := make([]DatabaseKeyIndex, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b DatabaseKeyIndex) int {
		if a.Ingredient != b.Ingredient {
			return int(a.Ingredient) - int(b.Ingredient)
		}
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		default:
			return 0
		}
	})
	return out
}
