package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/dipeo/engine/state"
	"github.com/dipeo/engine/store"
)

func newCache(t *testing.T) (*store.CacheStore, *store.SQLiteBackend) {
	t.Helper()
	b := newSQLite(t)
	cs, err := store.NewCacheStore(b, 16, 4)
	if err != nil {
		t.Fatalf("NewCacheStore: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs, b
}

// TestCacheStoreWriteThroughCreate covers G2: execution start is
// persisted synchronously, so a Load straight from the backend (not the
// hot cache) sees it immediately after Create returns.
func TestCacheStoreWriteThroughCreate(t *testing.T) {
	cs, b := newCache(t)
	ctx := context.Background()

	st := state.New("e1", "d1", []string{"A"}, nil)
	if err := cs.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := b.Load(ctx, "e1")
	if err != nil {
		t.Fatalf("backend.Load after Create: %v", err)
	}
	if got.ID != "e1" {
		t.Fatalf("backend.Load = %+v, want id=e1", got)
	}
}

// TestCacheStoreHotRead covers G1: once cached, Get must not need the
// backend to still have the row — deleting it from the backend directly
// and reading through the CacheStore still succeeds.
func TestCacheStoreHotRead(t *testing.T) {
	cs, b := newCache(t)
	ctx := context.Background()

	st := state.New("e1", "d1", []string{"A"}, nil)
	st.Finish(state.ExecCompleted, time.Now())
	if err := cs.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n, err := b.DeleteOlderThan(ctx, time.Now().Add(time.Hour)); err != nil || n != 1 {
		t.Fatalf("DeleteOlderThan = %d, %v; want 1 row deleted", n, err)
	}

	got, err := cs.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get (should hit hot cache, backend row deleted): %v", err)
	}
	if got.ID != "e1" {
		t.Fatalf("Get = %+v, want id=e1", got)
	}
}

// TestCacheStoreGetIsolatesCallers verifies Get returns an independent
// clone: a caller mutating the returned state must never corrupt the
// cached copy another concurrent caller observes.
func TestCacheStoreGetIsolatesCallers(t *testing.T) {
	cs, _ := newCache(t)
	ctx := context.Background()

	st := state.New("e1", "d1", []string{"A"}, nil)
	if err := cs.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got1, _ := cs.Get(ctx, "e1")
	got1.Status = state.ExecFailed

	got2, _ := cs.Get(ctx, "e1")
	if got2.Status != state.ExecPending {
		t.Fatalf("second Get observed mutation from first caller's copy: status = %s", got2.Status)
	}
}

// TestCacheStoreSaveFlush covers G3: a Save enqueues an async checkpoint,
// and Flush blocks until every checkpoint enqueued before the call has
// reached the backend.
func TestCacheStoreSaveFlush(t *testing.T) {
	cs, b := newCache(t)
	ctx := context.Background()

	st := state.New("e1", "d1", []string{"A"}, nil)
	if err := cs.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now()
	_ = st.StartNode("A", now)
	out := state.NodeOutput{NodeID: "A", Value: map[string]any{"default": 1}}
	_ = st.CompleteNode("A", now, out, false)

	if err := cs.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cs.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := b.Load(ctx, "e1")
	if err != nil {
		t.Fatalf("backend.Load after Flush: %v", err)
	}
	if _, ok := got.NodeOutputs["A"]; !ok {
		t.Fatal("checkpoint did not reach the backend after Flush")
	}
}

// TestCacheStoreReconcileOrphans covers G5 and S6: an execution whose
// last persisted status is RUNNING at process start is marked
// FAILED (no reason is recorded) when a fresh CacheStore reconciles against the same
// backend, simulating a restart after a crash before the next checkpoint.
func TestCacheStoreReconcileOrphans(t *testing.T) {
	b := newSQLite(t)
	ctx := context.Background()

	st := state.New("e1", "d1", []string{"A", "B"}, nil)
	if err := b.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	now := time.Now()
	_ = st.StartNode("A", now)
	_ = st.CompleteNode("A", now, state.NodeOutput{NodeID: "A", Value: map[string]any{"default": 1}}, false)
	st.Status = state.ExecRunning
	if err := b.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Simulate process restart: a fresh CacheStore over the same backend.
	cs2, err := store.NewCacheStore(b, 16, 4)
	if err != nil {
		t.Fatalf("NewCacheStore (post-restart): %v", err)
	}
	defer cs2.Close()

	reconciled, err := cs2.ReconcileOrphans(ctx)
	if err != nil {
		t.Fatalf("ReconcileOrphans: %v", err)
	}
	if len(reconciled) != 1 || reconciled[0] != "e1" {
		t.Fatalf("ReconcileOrphans = %v, want [e1]", reconciled)
	}

	got, err := b.Load(ctx, "e1")
	if err != nil {
		t.Fatalf("Load after reconcile: %v", err)
	}
	if got.Status != state.ExecFailed {
		t.Fatalf("status after reconcile = %s, want FAILED", got.Status)
	}
	// No torn writes: node A's completion that was persisted before the
	// "crash" is either fully present or fully absent, never partial.
	out, ok := got.NodeOutputs["A"]
	if !ok {
		t.Fatal("node A output missing after reconcile; torn write")
	}
	if out.Value["default"] != float64(1) {
		t.Fatalf("node A output = %v, want {default:1}", out.Value)
	}
}

func TestCacheStoreListDelegatesToBackend(t *testing.T) {
	cs, _ := newCache(t)
	ctx := context.Background()

	st := state.New("e1", "d1", nil, nil)
	st.Finish(state.ExecCompleted, time.Now())
	if err := cs.Create(ctx, st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cs.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cs.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := cs.List(ctx, store.ListFilter{DiagramID: "d1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List = %v, want 1 entry", got)
	}
}
