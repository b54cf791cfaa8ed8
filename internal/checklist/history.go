package checklist

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RunHistory is an append-only, query-friendly log of every verification
// pass, enabling "how has item X trended" queries the point-in-time
// checklist.json and verification-results.json files aren't built for.
// The JSON files remain the authoritative runtime artifacts; RunHistory is
// informational.
type RunHistory struct {
	db *sql.DB
}

// OpenRunHistory opens (creating if absent) a sqlite database at path and
// ensures its schema exists.
func OpenRunHistory(path string) (*RunHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checklist: open history db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS verification_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL,
			status TEXT NOT NULL,
			run_at DATETIME NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("checklist: create schema: %w", err)
	}
	return &RunHistory{db: db}, nil
}

// Close releases the underlying database handle.
func (h *RunHistory) Close() error {
	return h.db.Close()
}

// Record appends one verification pass's per-item results.
func (h *RunHistory) Record(summary Summary) error {
	tx, err := h.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO verification_runs (item_id, status, run_at) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range summary.Results {
		if _, err := stmt.Exec(r.ItemID, string(r.Status), summary.RunAt.UTC()); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RunRecord is one stored verification-run entry.
type RunRecord struct {
	ItemID string
	Status Status
	RunAt  time.Time
}

// Trend returns every recorded run for itemID since the given time,
// oldest first — the sequence of pending/failing/verified transitions an
// item went through.
func (h *RunHistory) Trend(itemID string, since time.Time) ([]RunRecord, error) {
	rows, err := h.db.Query(
		`SELECT item_id, status, run_at FROM verification_runs
		 WHERE item_id = ? AND run_at >= ? ORDER BY run_at ASC`,
		itemID, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var status string
		if err := rows.Scan(&r.ItemID, &status, &r.RunAt); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
