// Package dag provides the dependency graph primitive behind plan analysis.
//
// A Graph stores node ids in insertion order together with their dependency
// and dependent sets. Every query that returns several ids returns them in
// insertion order, so the batches and paths computed on top of a Graph are
// deterministic for a given node declaration order.
package dag
