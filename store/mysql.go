package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dipeo/engine/state"
)

// MySQLBackend is the multi-process-safe alternative to SQLiteBackend,
// for deployments running more than one engine process against shared
// state — SQLite's single-writer limitation makes it a single-process
// store only.
type MySQLBackend struct {
	db *sql.DB
}

// NewMySQLBackend opens a connection pool against dsn and runs schema
// migration. dsn follows go-sql-driver/mysql's DSN format, e.g.
// "user:pass@tcp(host:3306)/dbname?parseTime=true".
func NewMySQLBackend(dsn string) (*MySQLBackend, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	b := &MySQLBackend{db: db}
	if err := b.migrate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MySQLBackend) migrate() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id VARCHAR(64) PRIMARY KEY,
			diagram_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NULL,
			data LONGBLOB NOT NULL,
			INDEX idx_executions_status (status),
			INDEX idx_executions_diagram (diagram_id)
		) ENGINE=InnoDB
	`)
	if err != nil {
		return fmt.Errorf("migrate mysql schema: %w", err)
	}
	return nil
}

func (b *MySQLBackend) Create(ctx context.Context, st *state.ExecutionState) error {
	return b.upsert(ctx, st)
}

func (b *MySQLBackend) Save(ctx context.Context, st *state.ExecutionState) error {
	return b.upsert(ctx, st)
}

func (b *MySQLBackend) upsert(ctx context.Context, st *state.ExecutionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal execution state: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO executions (id, diagram_id, status, started_at, ended_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			ended_at = VALUES(ended_at),
			data = VALUES(data)
	`, st.ID, st.DiagramID, string(st.Status), st.StartedAt, st.EndedAt, data)
	if err != nil {
		return fmt.Errorf("save execution %s: %w", st.ID, err)
	}
	return nil
}

func (b *MySQLBackend) Load(ctx context.Context, id string) (*state.ExecutionState, error) {
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

func (b *MySQLBackend) List(ctx context.Context, filter ListFilter) ([]*state.ExecutionState, error) {
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

func (b *MySQLBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM executions WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old executions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (b *MySQLBackend) ListRunning(ctx context.Context) ([]string, error) {
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

func (b *MySQLBackend) Close() error {
	return b.db.Close()
}
