package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Placement is one recorded grouping outcome.
type Placement struct {
	ID         int64
	TabID      int
	WindowID   int
	Mode       string // "domain", "ai", "bulk-domain", "bulk-ai"
	Outcome    string // "joined", "created", "skipped", "failed"
	GroupID    int
	GroupTitle string
	Host       string
	Error      string
	CreatedAt  time.Time
}

// RecordPlacement appends p to the placement log.
func RecordPlacement(db *sql.DB, p Placement) error {
	_, err := db.Exec(`
		INSERT INTO placement_log (tab_id, window_id, mode, outcome, group_id, group_title, host, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TabID, p.WindowID, p.Mode, p.Outcome, p.GroupID, p.GroupTitle, p.Host, p.Error)
	if err != nil {
		return fmt.Errorf("record placement: %w", err)
	}
	return nil
}

// ListPlacements returns the most recent placements, newest first.
func ListPlacements(db *sql.DB, limit int) ([]Placement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, tab_id, window_id, mode, outcome, group_id, group_title, host, error, created_at
		FROM placement_log
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	defer rows.Close()

	var out []Placement
	for rows.Next() {
		var p Placement
		if err := rows.Scan(&p.ID, &p.TabID, &p.WindowID, &p.Mode, &p.Outcome,
			&p.GroupID, &p.GroupTitle, &p.Host, &p.Error, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PurgePlacements deletes placements older than cutoff and returns the
// number removed.
func PurgePlacements(db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM placement_log WHERE created_at < ?", cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("purge placements: %w", err)
	}
	return res.RowsAffected()
}
