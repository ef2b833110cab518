// Package usage keeps a per-request token accounting ledger shared by all
// agents, backed by SQLite at the agents root.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed request's token accounting.
type Record struct {
	AgentID          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Timestamp        time.Time
}

// Totals aggregates the ledger per model.
type Totals struct {
	Model            string
	Requests         int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Ledger records token usage across agents.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens or creates the usage database.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("usage ledger path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare usage dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open usage ledger: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	timestamp TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init usage schema: %w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

// Record appends one usage entry.
func (l *Ledger) Record(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := l.db.ExecContext(context.Background(), `
INSERT INTO usage_records (agent_id, model, prompt_tokens, completion_tokens, total_tokens, timestamp)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// TotalsByModel aggregates the full ledger per model, optionally filtered to
// one agent. An empty agentID covers all agents.
func (l *Ledger) TotalsByModel(agentID string) ([]Totals, error) {
	query := `
SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0), COALESCE(SUM(total_tokens),0)
FROM usage_records`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` GROUP BY model ORDER BY model`

	rows, err := l.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage totals: %w", err)
	}
	defer rows.Close()

	var totals []Totals
	for rows.Next() {
		var t Totals
		if err := rows.Scan(&t.Model, &t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
