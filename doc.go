// Package increment implements the core of a demand-driven incremental
// computation engine: a memo table, cross-goroutine claim coordination,
// shallow/deep verification, backdating, LRU eviction, and fixpoint
// iteration for cyclic queries.
//
// The core never constructs queries itself. Callers register ingredients
// (via Database.RegisterIngredient) and fetch values through Fetch. Input
// ingredients, tracked-struct ingredients, and code generation for user
// query functions are out of scope; see internal/harness for the minimal
// ingredient implementations used by this package's own tests.
package increment
