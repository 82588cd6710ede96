package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// SaveArtifact inserts or replaces a tracked artifact.
func (db *DB) SaveArtifact(a tracking.Artifact) error {
	tickers, err := json.Marshal(nonNil(a.Tickers))
	if err != nil {
		return fmt.Errorf("encode tickers: %w", err)
	}
	keys, err := json.Marshal(nonNil(a.CacheKeys))
	if err != nil {
		return fmt.Errorf("encode cache keys: %w", err)
	}

	_, err = db.Exec(`
		INSERT OR REPLACE INTO tracked_artifacts
			(id, kind, conversation_id, thread_id, owner, ticker, tickers, cache_keys, ephemeral, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Placement.ConversationID, a.Placement.ThreadID,
		a.Owner, a.Ticker, string(tickers), string(keys), boolToInt(a.Ephemeral),
		a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.ID, err)
	}
	return nil
}

// DeleteArtifact removes a tracked artifact. Missing ids are not an error.
func (db *DB) DeleteArtifact(id string) error {
	if _, err := db.Exec("DELETE FROM tracked_artifacts WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	return nil
}

// LoadArtifacts returns every journaled artifact, oldest first.
func (db *DB) LoadArtifacts() ([]tracking.Artifact, error) {
	rows, err := db.Query(`
		SELECT id, kind, conversation_id, thread_id, owner, ticker, tickers, cache_keys, ephemeral, created_at
		FROM tracked_artifacts
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	defer rows.Close()

	var out []tracking.Artifact
	for rows.Next() {
		var (
			a               tracking.Artifact
			kind            string
			tickers, keys   string
			ephemeral       int
			createdAtMillis int64
		)
		if err := rows.Scan(&a.ID, &kind, &a.Placement.ConversationID, &a.Placement.ThreadID,
			&a.Owner, &a.Ticker, &tickers, &keys, &ephemeral, &createdAtMillis); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Kind = tracking.Kind(kind)
		a.Ephemeral = ephemeral != 0
		a.CreatedAt = time.UnixMilli(createdAtMillis).UTC()
		if err := json.Unmarshal([]byte(tickers), &a.Tickers); err != nil {
			return nil, fmt.Errorf("decode tickers for %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(keys), &a.CacheKeys); err != nil {
			return nil, fmt.Errorf("decode cache keys for %s: %w", a.ID, err)
		}
		if len(a.Tickers) == 0 {
			a.Tickers = nil
		}
		if len(a.CacheKeys) == 0 {
			a.CacheKeys = nil
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountArtifacts returns the number of journaled artifacts.
func (db *DB) CountArtifacts() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM tracked_artifacts").Scan(&n)
	return n, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
