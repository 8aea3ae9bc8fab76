// Package filter implements composable boolean predicates over stream
// events, applied per-connection at dequeue time before batching.
//
// Leaves match on visibility, event type, session, an arbitrary function,
// or a compiled CEL expression; And, Or, and Not combine them into
// arbitrary boolean trees. A nil predicate matches everything.
package filter
