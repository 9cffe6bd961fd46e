// Package store implements the two-tier state store (C3): an LRU hot
// cache in front of a persistent Backend (SQLite or MySQL), with
// asynchronous checkpoint writes and the crash-safety floor that
// recovers executions orphaned by a process crash.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dipeo/engine/state"
)

// ErrNotFound is returned when a requested execution id does not exist.
var ErrNotFound = errors.New("execution not found")

// ListFilter narrows Store.List to a diagram, a status, or a time window.
// Zero-value fields are unfiltered.
type ListFilter struct {
	DiagramID string
	Status    state.ExecutionStatus
	Since     time.Time
	Limit     int
}

// Store is what the engine and the HTTP surfaces use to persist and
// recover execution state. Every operation is safe for concurrent use.
type Store interface {
	// Create persists a brand-new execution record.
	Create(ctx context.Context, st *state.ExecutionState) error

	// Get returns the execution state for id, reading through the hot
	// cache to the backend on a miss.
	Get(ctx context.Context, id string) (*state.ExecutionState, error)

	// Save checkpoints the full current state, used after every
	// iterator step. Writes land in the hot cache immediately and are
	// flushed to the backend asynchronously unless the implementation
	// documents otherwise.
	Save(ctx context.Context, st *state.ExecutionState) error

	// List returns executions matching filter, most recent first.
	List(ctx context.Context, filter ListFilter) ([]*state.ExecutionState, error)

	// CleanupOld deletes every execution whose EndedAt is before
	// cutoff, returning the count removed.
	CleanupOld(ctx context.Context, cutoff time.Time) (int, error)

	// ReconcileOrphans finds every execution still marked RUNNING in
	// the backend — meaning the process that owned it crashed before
	// marking it terminal — and marks them FAILED. No reason is recorded
	// on the state; FAILED is the only trace. It returns the ids reconciled. Callers run this once at startup before
	// accepting new work (G5's crash-safety floor).
	ReconcileOrphans(ctx context.Context) ([]string, error)

	// Flush blocks until every pending async write has reached the
	// backend. Used before shutdown and in tests.
	Flush(ctx context.Context) error

	// Close releases the backend connection and stops background workers.
	Close() error
}

// Backend is the persistent half of the store: a durable place to read and
// write full ExecutionState snapshots. SQLiteBackend and MySQLBackend
// implement this; CacheStore is the only thing that talks to a Backend
// directly.
type Backend interface {
	Create(ctx context.Context, st *state.ExecutionState) error
	Load(ctx context.Context, id string) (*state.ExecutionState, error)
	Save(ctx context.Context, st *state.ExecutionState) error
	List(ctx context.Context, filter ListFilter) ([]*state.ExecutionState, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	ListRunning(ctx context.Context) ([]string, error)
	Close() error
}
