// Package graph tracks registered jobs and the "depends on me" relation
// between them.
//
// Nodes live in an arena indexed by NodeID (registration order). Every node
// keeps the set of its dependents; nothing is cached, so Ready always
// reflects removals made since the previous call. The graph is owned by a
// single scheduler loop and does no locking.
package graph
