package store

import (
	"fmt"
	"time"
)

// Run is one recorded retention tick.
type Run struct {
	TickID         string        `json:"tick_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Expired        int           `json:"expired"`
	Deleted        int           `json:"deleted"`
	Errors         int           `json:"errors"`
	CacheReleased  int           `json:"cache_released"`
	TrackingSwept  int           `json:"tracking_swept"`
	ThreadsRemoved int           `json:"threads_removed"`
	OrphansRemoved int           `json:"orphans_removed"`
}

// RecordRun stores a tick summary.
func (db *DB) RecordRun(r Run) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO cleanup_runs
			(tick_id, started_at, duration_ms, expired, deleted, errors,
			 cache_released, tracking_swept, threads_removed, orphans_removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TickID, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(),
		r.Expired, r.Deleted, r.Errors, r.CacheReleased,
		r.TrackingSwept, r.ThreadsRemoved, r.OrphansRemoved,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.TickID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT tick_id, started_at, duration_ms, expired, deleted, errors,
		       cache_released, tracking_swept, threads_removed, orphans_removed
		FROM cleanup_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                Run
			startedMs, durMs int64
		)
		if err := rows.Scan(&r.TickID, &startedMs, &durMs, &r.Expired, &r.Deleted, &r.Errors,
			&r.CacheReleased, &r.TrackingSwept, &r.ThreadsRemoved, &r.OrphansRemoved); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		r.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneRuns deletes runs that started before cutoff.
func (db *DB) PruneRuns(cutoff time.Time) (int, error) {
	res, err := db.Exec("DELETE FROM cleanup_runs WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
