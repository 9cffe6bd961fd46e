package engine

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// WorkItem is one ready node queued for dispatch. OrderKey gives the
// frontier a deterministic dequeue order independent of goroutine
// scheduling, so two runs of the same diagram against the same state
// history process a given step's ready set in the same sequence.
type WorkItem struct {
	StepID    int
	OrderKey  uint64
	NodeID    string
	ExecCount int // the node's exec_counts value at the moment this item was enqueued
}

// computeOrderKey derives a deterministic sort key from a node id and its
// exec count at enqueue time, the same hash-then-truncate construction the
// teacher uses for (parent node, edge index) pairs.
func computeOrderKey(nodeID string, execCount int) uint64 {
	h := sha256.New()
	h.Write([]byte(nodeID))
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(execCount))
	h.Write(b[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

type workHeap []WorkItem

func (h workHeap) Len() int            { return len(h) }
func (h workHeap) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h workHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *workHeap) Push(x interface{}) { *h = append(*h, x.(WorkItem)) }
func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Frontier is the bounded, deterministic, back-pressured work queue the
// iterator (C8) drains each step. A priority heap keyed by OrderKey gives
// deterministic dequeue order; a buffered channel caps queue depth and
// blocks Enqueue once it's full, so a node that fans out faster than the
// worker pool drains can't grow memory unbounded.
type Frontier struct {
	mu       sync.Mutex
	heap     workHeap
	queue    chan struct{}
	capacity int

	totalEnqueued      atomic.Int64
	totalDequeued       atomic.Int64
	backpressureEvents atomic.Int32
	peakQueueDepth      atomic.Int32
}

// NewFrontier creates a Frontier bounded to capacity items.
func NewFrontier(capacity int) *Frontier {
	f := &Frontier{
		heap:     make(workHeap, 0),
		queue:    make(chan struct{}, capacity),
		capacity: capacity,
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds item to the frontier, blocking until the queue has room or
// ctx is cancelled.
func (f *Frontier) Enqueue(ctx context.Context, item WorkItem) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.mu.Lock()
	heap.Push(&f.heap, item)
	depth := int32(f.heap.Len())
	f.mu.Unlock()

	for {
		peak := f.peakQueueDepth.Load()
		if depth <= peak || f.peakQueueDepth.CompareAndSwap(peak, depth) {
			break
		}
	}
	if depth >= int32(f.capacity) {
		f.backpressureEvents.Add(1)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.queue <- struct{}{}:
		f.totalEnqueued.Add(1)
		return nil
	}
}

// Dequeue removes and returns the item with the smallest OrderKey,
// blocking until one is available or ctx is cancelled.
func (f *Frontier) Dequeue(ctx context.Context) (WorkItem, error) {
	var zero WorkItem
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.queue:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.heap.Len() == 0 {
			return zero, context.Canceled
		}
		item := heap.Pop(&f.heap).(WorkItem)
		f.totalDequeued.Add(1)
		return item, nil
	}
}

// Len returns the current queue depth.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// SchedulerMetrics is a point-in-time snapshot of frontier activity,
// exposed through the observe package's Prometheus adapter.
type SchedulerMetrics struct {
	QueueDepth         int32
	QueueCapacity      int32
	TotalEnqueued      int64
	TotalDequeued      int64
	BackpressureEvents int32
	PeakQueueDepth     int32
}

// Metrics returns a snapshot of this frontier's counters.
func (f *Frontier) Metrics() SchedulerMetrics {
	f.mu.Lock()
	depth := int32(f.heap.Len())
	f.mu.Unlock()

	return SchedulerMetrics{
		QueueDepth:         depth,
		QueueCapacity:      int32(f.capacity),
		TotalEnqueued:      f.totalEnqueued.Load(),
		TotalDequeued:      f.totalDequeued.Load(),
		BackpressureEvents: f.backpressureEvents.Load(),
		PeakQueueDepth:      f.peakQueueDepth.Load(),
	}
}
