package queue

import "container/heap"

// entry is a job waiting in the priority heap.
type entry struct {
	job *Job
	seq uint64
}

// jobHeap orders entries by priority, highest first, then by arrival.
type jobHeap []*entry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Options.Priority != h[j].job.Options.Priority {
		return h[i].job.Options.Priority > h[j].job.Options.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func (q *Queue) reheapLocked() {
	heap.Init(&q.pending)
}
