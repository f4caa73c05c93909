// Package executor runs an analyzed node graph.
//
// The Executor walks the plan batch by batch. Inside a batch, nodes run
// concurrently when the group is marked parallel and in plan order otherwise.
// For every node it builds the input map from the outputs of upstream nodes,
// invokes the registered executable with a derived execution context, and
// records the outcome in the node store and in the run trace.
//
// A failed node is frozen in the store and its downstream nodes stay pending.
// Unless the group continues on error, nothing else is scheduled after the
// first failure. Cancellation and pausing are cooperative: the executor checks
// the run's control between nodes and batches and never interrupts a running
// node body.
package executor
