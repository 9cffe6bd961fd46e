package engine

import (
	"context"
	"testing"
	"time"
)

func TestComputeOrderKeyIsDeterministic(t *testing.T) {
	a := computeOrderKey("node1", 0)
	b := computeOrderKey("node1", 0)
	if a != b {
		t.Fatalf("same inputs produced different keys: %d != %d", a, b)
	}

	c := computeOrderKey("node2", 0)
	if a == c {
		t.Fatal("different node ids should (almost always) produce different keys")
	}

	dd := computeOrderKey("node1", 1)
	if a == dd {
		t.Fatal("different exec counts should (almost always) produce different keys")
	}
}

func TestFrontierDequeuesInOrderKeyOrder(t *testing.T) {
	f := NewFrontier(10)
	ctx := context.Background()

	items := []WorkItem{
		{NodeID: "c", OrderKey: 30},
		{NodeID: "a", OrderKey: 10},
		{NodeID: "b", OrderKey: 20},
	}
	for _, it := range items {
		if err := f.Enqueue(ctx, it); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var order []string
	for i := 0; i < 3; i++ {
		item, err := f.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		order = append(order, item.NodeID)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dequeue order = %v, want %v", order, want)
		}
	}
}

func TestFrontierEnqueueBlocksWhenFull(t *testing.T) {
	f := NewFrontier(1)
	ctx := context.Background()
	if err := f.Enqueue(ctx, WorkItem{NodeID: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := f.Enqueue(blockedCtx, WorkItem{NodeID: "b"})
	if err == nil {
		t.Fatal("Enqueue on a full frontier should block until cancelled, never silently drop")
	}
}

func TestFrontierMetricsTracksPeakDepth(t *testing.T) {
	f := NewFrontier(5)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = f.Enqueue(ctx, WorkItem{NodeID: "x", OrderKey: uint64(i)})
	}
	m := f.Metrics()
	if m.PeakQueueDepth < 3 {
		t.Fatalf("PeakQueueDepth = %d, want >= 3", m.PeakQueueDepth)
	}
	if m.TotalEnqueued != 3 {
		t.Fatalf("TotalEnqueued = %d, want 3", m.TotalEnqueued)
	}
}
