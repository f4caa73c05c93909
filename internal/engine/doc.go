// Package engine is the top-level API of nodegrid. It composes the job queue,
// the graph executor and a transport router: Execute analyzes a graph,
// records an execution, enqueues it and waits for its job to finish, bounded
// by a hard timeout. Executions can be paused, resumed and cancelled by id,
// their status and history inspected, and external webhook callbacks
// correlated with them.
//
// Every engine operation is also served as a command on the engine channel
// of Router, and progress and completion are published there as events, so
// the same calls work in process and over any transport.
package engine
