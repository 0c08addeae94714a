package scheduler

import "context"

// task is the scheduler-internal record of a submitted unit of work
type task struct {
	id              string
	spec            TaskSpec
	attemptCount    int
	maxAttempts     int
	state           TaskState
	seq             uint64 // submission order within a priority tier
	lastErr         error
	nextRunAt       int64 // unix nanos, zero when immediately runnable
	heapIndex       int   // -1 when not queued
	cancelAttempt   context.CancelFunc // set while an attempt is running
	cancelRequested bool
}

// taskHeap orders queued tasks by priority tier, then FIFO by submission
// sequence. Implements container/heap.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].spec.Priority != h[j].spec.Priority {
		return h[i].spec.Priority > h[j].spec.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}
