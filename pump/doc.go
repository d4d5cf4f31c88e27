// Package pump moves Jobs through a tree of execution contexts, towards the
// single primary context which runs them.
//
// Each context has one Pump. A Pump with no parent Channel is the primary:
// its upstream is a local executor which runs one Job at a time, in arrival
// order, and which is the sole writer of its databases. Every other Pump is
// a secondary whose upstream is the Channel to its parent.
//
// A Pump sends Jobs of its own context upstream, and also relays requests
// arriving from its children. Each hop assigns a fresh request ID, and maps
// the eventual response back to the child's original ID:
//
//	worker --(id 7)--> process --(id 3)--> primary executor
//	worker <--(id 7)-- process <--(id 3)-- primary executor
//
// A Pump is unaware of its depth within the tree: the primary differs only
// in that its upstream Channel is the executor.
package pump
