// Package analyzer turns a node tree into an execution plan.
//
// Analyze is a pure function: it validates the tree, rejects cycles at any
// nesting depth, and for the root graph level computes the topological
// batches, per-node weights, the critical path, and the maximum parallelism.
// It is cheap enough to run before every execution and on every graph edit.
package analyzer
