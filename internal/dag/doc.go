// Package dag turns a configuration model into a directed acyclic graph of
// step and resource nodes and executes it with a bounded worker pool.
//
// Edges come from three places: explicit depends_on lists, step output
// references inside argument and when expressions, and resource bindings in
// uses blocks. A node runs once its last dependency has completed. A failed
// node cancels the run and marks its downstream cone as skipped; a step
// whose when clause is false is skipped without penalizing its dependents.
package dag
