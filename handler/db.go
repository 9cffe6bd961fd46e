package handler

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/state"
)

// DB executes a node's "query" config field as a parameterized SQL
// statement against a shared connection, binding the resolved input
// bundle as named parameters (sqlx.NamedQuery's ":name" convention).
// Rows are returned as a slice of column-name-keyed maps under the
// "default" output handle.
type DB struct {
	Conn *sqlx.DB
}

// NewDB wraps an already-open *sqlx.DB. This handler never opens
// connections — the caller supplies an open pool, and every db node
// served by this handler shares it.
func NewDB(conn *sqlx.DB) *DB {
	return &DB{Conn: conn}
}

func (d *DB) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	query, _ := req.Node.Config["query"].(string)
	if query == "" {
		return state.NodeOutput{}, fmt.Errorf("db %s: config.query is required", req.Node.ID)
	}

	params := make(map[string]interface{}, len(req.Input))
	for k, v := range req.Input {
		params[k] = v
	}

	rows, err := d.Conn.NamedQueryContext(req.Ctx, query, params)
	if err != nil {
		return state.NodeOutput{}, fmt.Errorf("db %s: query: %w", req.Node.ID, err)
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return state.NodeOutput{}, fmt.Errorf("db %s: scan row: %w", req.Node.ID, err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return state.NodeOutput{}, fmt.Errorf("db %s: iterate rows: %w", req.Node.ID, err)
	}

	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value:  map[string]any{"default": results},
	}, nil
}
