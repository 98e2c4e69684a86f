package fragment

import (
	"container/heap"
	"sync"
)

// Capacity is the bound on both the URL queue and the data queue
// (spec.md §3/§9): producers block on Push when full, consumers block
// on Pop when empty. This is the only backpressure mechanism in the
// pipeline — it bounds memory regardless of session duration (I2).
const Capacity = 100

// item is one entry of the internal min-heap, ordered by Sequence.
type item struct {
	seq int64
	val Fragment
}

type itemHeap []item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Queue is a bounded, min-heap-ordered-by-sequence blocking queue.
// Zero value is not usable; use NewQueue.
type Queue struct {
	mu     sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	heap   itemHeap
	cap    int
	closed bool
}

// NewQueue creates a queue bounded at Capacity entries.
func NewQueue() *Queue {
	q := &Queue{cap: Capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push inserts f keyed by f.Sequence, blocking while the queue is full.
// It returns false if the queue was closed before room became
// available.
func (q *Queue) Push(f Fragment) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) >= q.cap && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}
	heap.Push(&q.heap, item{seq: f.Sequence, val: f})
	q.notEmpty.Signal()
	return true
}

// Pop removes and returns the lowest-sequence fragment, blocking while
// the queue is empty. ok is false once the queue has been closed and
// drained.
func (q *Queue) Pop() (f Fragment, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.heap) == 0 {
		return Fragment{}, false
	}
	it := heap.Pop(&q.heap).(item)
	q.notFull.Signal()
	return it.val, true
}

// Len reports the current number of queued entries (for tests and
// metrics; not required for correctness).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Close unblocks every waiter. Pending entries already queued remain
// poppable; Push calls after Close fail immediately.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
