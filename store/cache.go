package store

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"github.com/dipeo/engine/state"
)

type writeJob struct {
	st   *state.ExecutionState
	done chan struct{}
}

// CacheStore is the two-tier Store (C3): an LRU hot cache answers reads
// and writes immediately, while a single background worker drains a write
// queue into the durable Backend. A crashed process loses at most the
// handful of checkpoints still in that queue — ReconcileOrphans is the
// floor under that gap, not a substitute for it.
type CacheStore struct {
	backend Backend
	hot     *lru.Cache[string, *state.ExecutionState]

	writeQueue chan writeJob
	done       chan struct{}

	cron *cron.Cron
}

// NewCacheStore builds a CacheStore over backend with a hot cache sized
// for hotCacheSize executions and a write queue depth of queueDepth.
func NewCacheStore(backend Backend, hotCacheSize, queueDepth int) (*CacheStore, error) {
	if hotCacheSize <= 0 {
		hotCacheSize = 256
	}
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	hot, err := lru.New[string, *state.ExecutionState](hotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create hot cache: %w", err)
	}
	cs := &CacheStore{
		backend:    backend,
		hot:        hot,
		writeQueue: make(chan writeJob, queueDepth),
		done:       make(chan struct{}),
	}
	go cs.writeLoop()
	return cs, nil
}

func (cs *CacheStore) writeLoop() {
	for job := range cs.writeQueue {
		if job.st != nil {
			// Best-effort: a failed async checkpoint doesn't abort the run
			// that produced it, but the hot cache already has the latest
			// value, so a subsequent read is still correct until the next
			// successful flush.
			_ = cs.backend.Save(context.Background(), job.st)
		}
		if job.done != nil {
			close(job.done)
		}
	}
}

func (cs *CacheStore) Create(ctx context.Context, st *state.ExecutionState) error {
	if err := cs.backend.Create(ctx, st); err != nil {
		return err
	}
	cs.hot.Add(st.ID, st.Clone())
	return nil
}

func (cs *CacheStore) Get(ctx context.Context, id string) (*state.ExecutionState, error) {
	if st, ok := cs.hot.Get(id); ok {
		return st.Clone(), nil
	}
	st, err := cs.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	cs.hot.Add(id, st.Clone())
	return st, nil
}

// Save caches st immediately and enqueues an async persist. If the queue
// is full, it falls back to persisting synchronously rather than dropping
// the checkpoint — backpressure here should slow the run down, not lose
// durability.
func (cs *CacheStore) Save(ctx context.Context, st *state.ExecutionState) error {
	snapshot := st.Clone()
	cs.hot.Add(st.ID, snapshot)

	select {
	case cs.writeQueue <- writeJob{st: snapshot}:
		return nil
	default:
		return cs.backend.Save(ctx, snapshot)
	}
}

func (cs *CacheStore) List(ctx context.Context, filter ListFilter) ([]*state.ExecutionState, error) {
	return cs.backend.List(ctx, filter)
}

func (cs *CacheStore) CleanupOld(ctx context.Context, cutoff time.Time) (int, error) {
	return cs.backend.DeleteOlderThan(ctx, cutoff)
}

// ReconcileOrphans fails every execution the backend still shows RUNNING,
// evicting each from the hot cache so a subsequent Get reflects the
// reconciled status rather than stale cached state.
func (cs *CacheStore) ReconcileOrphans(ctx context.Context) ([]string, error) {
	ids, err := cs.backend.ListRunning(ctx)
	if err != nil {
		return nil, err
	}
	reconciled := make([]string, 0, len(ids))
	for _, id := range ids {
		st, err := cs.backend.Load(ctx, id)
		if err != nil {
			continue
		}
		st.Finish(state.ExecFailed, time.Now())
		if err := cs.backend.Save(ctx, st); err != nil {
			continue
		}
		cs.hot.Remove(id)
		reconciled = append(reconciled, id)
	}
	return reconciled, nil
}

// Flush blocks until every checkpoint enqueued before this call has
// reached the backend.
func (cs *CacheStore) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case cs.writeQueue <- writeJob{done: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleCleanup registers a cron job that deletes executions older than
// retention on the given schedule (standard 5-field cron spec). Call Close
// to stop it along with the write loop.
func (cs *CacheStore) ScheduleCleanup(spec string, retention time.Duration) error {
	if cs.cron == nil {
		cs.cron = cron.New()
	}
	_, err := cs.cron.AddFunc(spec, func() {
		_, _ = cs.CleanupOld(context.Background(), time.Now().Add(-retention))
	})
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	cs.cron.Start()
	return nil
}

func (cs *CacheStore) Close() error {
	if cs.cron != nil {
		cs.cron.Stop()
	}
	close(cs.writeQueue)
	return cs.backend.Close()
}
