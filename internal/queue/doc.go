// Package queue is a concurrency-bounded job runner.
//
// A Queue decouples accepting work from running it. Jobs are ordered by
// priority (higher first, FIFO among equals), may be deferred, and are retried
// with a fixed or exponential backoff when they fail. Each retry is a fresh
// job tagged with the execution id it retries; the id returned by Add always
// resolves with the final outcome of the whole chain.
//
// Jobs run on an ants goroutine pool sized to the configured concurrency. A
// single dispatcher goroutine pops the priority heap whenever a slot frees up,
// so finishing jobs never block on pool submission.
//
// Results are kept for a TTL and can be read without blocking or awaited
// through a one-shot completion signal. Webhook responses correlated by
// execution id are stored the same way.
//
// ScalableQueue adds a fixed set of named workers for load-distribution
// bookkeeping. Execution is still performed by the base queue.
package queue
