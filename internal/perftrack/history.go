package perftrack

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History is an append-only, query-friendly log of every recorded
// completion, backing ad hoc analysis (e.g. "show me agent X's quality
// over the last month") that the in-memory ring buffer isn't built for.
// The JSON Stat rollup saved by Tracker.Save remains the authoritative
// source the rest of the system reads from; History is informational.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if absent) a sqlite database at path and
// ensures its schema exists.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("perftrack: open history db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS completions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_type TEXT NOT NULL,
			quality REAL NOT NULL,
			duration_s REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("perftrack: create schema: %w", err)
	}
	return &History{db: db}, nil
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Append records one completion event.
func (h *History) Append(agentType string, quality, durationS float64, at time.Time) error {
	_, err := h.db.Exec(
		`INSERT INTO completions (agent_type, quality, duration_s, recorded_at) VALUES (?, ?, ?, ?)`,
		agentType, quality, durationS, at.UTC(),
	)
	return err
}

// Row is one stored completion.
type Row struct {
	AgentType  string
	Quality    float64
	DurationS  float64
	RecordedAt time.Time
}

// Since returns every completion for agentType recorded at or after since,
// oldest first.
func (h *History) Since(agentType string, since time.Time) ([]Row, error) {
	rows, err := h.db.Query(
		`SELECT agent_type, quality, duration_s, recorded_at FROM completions
		 WHERE agent_type = ? AND recorded_at >= ? ORDER BY recorded_at ASC`,
		agentType, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.AgentType, &r.Quality, &r.DurationS, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
