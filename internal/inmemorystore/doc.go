// Package inmemorystore provides a thread-safe, in-memory implementation
// of the nodestore.Store interface. It is suitable for development, testing,
// or any scenario where node state does not need to be persisted.
//
// # Concurrency Model
//
// Unlike a per-key sync.Map, this store guards all state with one mutex:
// the cached overall progress depends on every node at once, so updates must
// be serialized to keep it consistent. Subscribers are notified after the
// lock is released, each with the snapshot produced by that change.
package inmemorystore
