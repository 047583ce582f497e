package batch

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QueueItem is a pending batch waiting for a worker.
type QueueItem struct {
	BatchID    uuid.UUID `json:"batch_job_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	seq   uint64
	index int
}

type itemHeap []*QueueItem

func (h itemHeap) Len() int { return len(h) }

// Higher priority first; equal priorities leave in arrival order.
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*QueueItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// PriorityQueue holds batch ids for the worker pool. It is safe for
// concurrent use.
type PriorityQueue struct {
	mu     sync.Mutex
	items  itemHeap
	byID   map[uuid.UUID]*QueueItem
	seq    uint64
	notify chan struct{}
	now    func() time.Time
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{
		byID:   map[uuid.UUID]*QueueItem{},
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Enqueue adds a batch. Enqueueing an id that is already pending only
// changes its priority, and reports false.
func (q *PriorityQueue) Enqueue(id uuid.UUID, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.byID[id]; ok {
		it.Priority = priority
		heap.Fix(&q.items, it.index)
		return false
	}
	q.seq++
	it := &QueueItem{BatchID: id, Priority: priority, EnqueuedAt: q.now(), seq: q.seq}
	heap.Push(&q.items, it)
	q.byID[id] = it
	q.signal()
	return true
}

func (q *PriorityQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue pops the highest priority item without blocking.
func (q *PriorityQueue) Dequeue() (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueueItem{}, false
	}
	it := heap.Pop(&q.items).(*QueueItem)
	delete(q.byID, it.BatchID)
	if len(q.items) > 0 {
		q.signal()
	}
	return *it, true
}

// Wait blocks until an item can be dequeued or ctx is done.
func (q *PriorityQueue) Wait(ctx context.Context) (QueueItem, error) {
	for {
		if it, ok := q.Dequeue(); ok {
			return it, nil
		}
		select {
		case <-ctx.Done():
			return QueueItem{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Remove drops a pending batch. It reports whether the id was queued.
func (q *PriorityQueue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.items, it.index)
	delete(q.byID, id)
	return true
}

// UpdatePriority reorders a pending batch. It reports whether the id was queued.
func (q *PriorityQueue) UpdatePriority(id uuid.UUID, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byID[id]
	if !ok {
		return false
	}
	it.Priority = priority
	heap.Fix(&q.items, it.index)
	return true
}

// Pending lists queued items in the order they would be dequeued.
func (q *PriorityQueue) Pending() []QueueItem {
	q.mu.Lock()
	out := make([]QueueItem, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
