// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the Go representation of a node graph and of
// everything that flows through a single execution of it.
//
// # Core Concepts
//
// The model is built around a few key structures:
//
//   - Node: A unit of work. It is a closed sum type with exactly two variants,
//     Leaf (an atomic node whose body is an opaque executable selected by its
//     Type) and Group (a node that contains a nested graph of nodes and edges).
//     Consumers type-switch on the variant; no reflection is involved.
//
//   - Edge: A directed data-flow link from a source node's output handle to a
//     target node's input handle within one containing graph.
//
//   - ExecutionGraph: The analyzed, batched plan derived from a Group. It is
//     recomputed whenever the source graph changes and never mutated in place.
//
//   - ExecutionContext: What a node body sees when it runs: its input map,
//     inherited variables, debug directives and the cooperative RunControl.
//
//   - ExecutionResult and Trace: The terminal outcome of one run and the
//     ordered timeline of events that produced it.
//
// Why a separate model package?
//
// The analyzer, the store, the executor, the queue and the transports all
// speak in these types. Keeping them in a leaf package with no dependencies
// on the rest of the engine lets each of those layers be built and tested in
// isolation.
package model
