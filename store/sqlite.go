package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dipeo/engine/state"
)

// SQLiteBackend persists execution state as a JSON blob alongside a
// handful of indexed columns used for List/CleanupOld/ReconcileOrphans
// queries, the same "one row, full snapshot plus queryable columns" shape
// the teacher's SQLiteStore uses for its workflow_steps table.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if necessary) a SQLite database at path
// and runs its schema migration. path may be ":memory:" for tests.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite supports one writer at a time

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("enable wal mode: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			diagram_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			data BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
		CREATE INDEX IF NOT EXISTS idx_executions_diagram ON executions(diagram_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Create(ctx context.Context, st *state.ExecutionState) error {
	return b.upsert(ctx, st)
}

func (b *SQLiteBackend) Save(ctx context.Context, st *state.ExecutionState) error {
	return b.upsert(ctx, st)
}

func (b *SQLiteBackend) upsert(ctx context.Context, st *state.ExecutionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal execution state: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO executions (id, diagram_id, status, started_at, ended_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			ended_at = excluded.ended_at,
			data = excluded.data
	`, st.ID, st.DiagramID, string(st.Status), st.StartedAt, st.EndedAt, data)
	if err != nil {
		return fmt.Errorf("save execution %s: %w", st.ID, err)
	}
	return nil
}

func (b *SQLiteBackend) Load(ctx context.Context, id string) (*state.ExecutionState, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM executions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", id, err)
	}
	var st state.ExecutionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal execution %s: %w", id, err)
	}
	return &st, nil
}

func (b *SQLiteBackend) List(ctx context.Context, filter ListFilter) ([]*state.ExecutionState, error) {
	query := `SELECT data FROM executions WHERE 1=1`
	var args []any
	if filter.DiagramID != "" {
		query += ` AND diagram_id = ?`
		args = append(args, filter.DiagramID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*state.ExecutionState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		var st state.ExecutionState
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("unmarshal execution row: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM executions WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old executions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (b *SQLiteBackend) ListRunning(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM executions WHERE status = ?`, string(state.ExecRunning))
	if err != nil {
		return nil, fmt.Errorf("list running executions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
