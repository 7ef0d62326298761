package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatwire/chatwire/internal/rest"
)

// SnapshotEntry is one persisted bucket snapshot with its capture time.
type SnapshotEntry struct {
	Snapshot  rest.BucketSnapshot `json:"snapshot"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SaveSnapshots upserts the given bucket snapshots.
func (s *Store) SaveSnapshots(ctx context.Context, snapshots []rest.BucketSnapshot) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Unix()
	for _, snap := range snapshots {
		_, err := s.DB.ExecContext(ctx, `
			INSERT INTO bucket_snapshots (key, remaining, reset_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				remaining = excluded.remaining,
				reset_at = excluded.reset_at,
				updated_at = excluded.updated_at
		`, snap.Key, snap.Remaining, snap.ResetAt.UTC().Unix(), now)
		if err != nil {
			return fmt.Errorf("save bucket snapshot %s: %w", snap.Key, err)
		}
	}
	return nil
}

// ListSnapshots returns stored snapshots, optionally filtered by key prefix.
func (s *Store) ListSnapshots(ctx context.Context, prefix string) ([]SnapshotEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `SELECT key, remaining, reset_at, updated_at FROM bucket_snapshots`
	args := []any{}
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		query += ` WHERE key LIKE ?`
		args = append(args, prefix+"%")
	}
	query += ` ORDER BY key`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bucket snapshots: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	var entries []SnapshotEntry
	for rows.Next() {
		var (
			entry     SnapshotEntry
			resetAt   int64
			updatedAt int64
		)
		if err := rows.Scan(&entry.Snapshot.Key, &entry.Snapshot.Remaining, &resetAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan bucket snapshot: %w", err)
		}
		entry.Snapshot.ResetAt = time.Unix(resetAt, 0).UTC()
		entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ResetSnapshots deletes stored snapshots, optionally only those matching a
// key prefix. It returns the number of rows removed.
func (s *Store) ResetSnapshots(ctx context.Context, prefix string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `DELETE FROM bucket_snapshots`
	args := []any{}
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		query += ` WHERE key LIKE ?`
		args = append(args, prefix+"%")
	}

	result, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset bucket snapshots: %w", err)
	}
	return result.RowsAffected()
}
