package harness

import "golang.org/x/exp/constraints"

// Min returns the least of vals. Used by the scenario tests to express
// "q = min(values_of(q))"-style fixpoint queries without each test
// hand-rolling a comparison loop.
func Min[T constraints.Ordered](vals ...T) T {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the greatest of vals.
func Max[T constraints.Ordered](vals ...T) T {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
