package store

import (
	"context"
	"fmt"
	"time"
)

// Track marks an entity as tracked. Re-tracks an entity that retention
// untracked.
func (s *Store) Track(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked (entity_id, tracked_at, untracked_at)
		VALUES (?, ?, NULL)
		ON CONFLICT(entity_id) DO UPDATE SET untracked_at = NULL
	`, entityID, unixNano(s.now()))
	if err != nil {
		return fmt.Errorf("track %s: %w", entityID, err)
	}
	return nil
}

// TrackDiscovered tracks entities seen for the first time and returns how
// many were new. Entities that were tracked before, including ones retention
// untracked, are left as they are.
func (s *Store) TrackDiscovered(ctx context.Context, entityIDs []string) (int, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("track discovered: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := unixNano(s.now())
	added := 0
	for _, id := range entityIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tracked (entity_id, tracked_at) VALUES (?, ?)
			ON CONFLICT(entity_id) DO NOTHING
		`, id, now)
		if err != nil {
			return 0, fmt.Errorf("track discovered %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("track discovered %s: %w", id, err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("track discovered: commit tx: %w", err)
	}
	return added, nil
}

// Tracked returns the tracked entity ids in ascending order.
func (s *Store) Tracked(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id FROM tracked
		WHERE untracked_at IS NULL
		ORDER BY entity_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tracked: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tracked: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked: %w", err)
	}
	return ids, nil
}

// UntrackTerminalBefore untracks orders that reached a terminal state before
// cutoff and returns their ids. Order rows are kept.
func (s *Store) UntrackTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("untrack terminal: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rows, err := tx.QueryContext(ctx, `
		SELECT t.entity_id
		FROM tracked t
		JOIN orders o ON o.id = t.entity_id
		WHERE t.untracked_at IS NULL
		  AND o.terminal_at IS NOT NULL
		  AND o.terminal_at < ?
		ORDER BY t.entity_id COLLATE BINARY ASC
	`, unixNano(cutoff))
	if err != nil {
		return nil, fmt.Errorf("untrack terminal: query: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("untrack terminal: scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("untrack terminal: iterate: %w", err)
	}

	now := unixNano(s.now())
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tracked SET untracked_at = ? WHERE entity_id = ?
		`, now, id); err != nil {
			return nil, fmt.Errorf("untrack %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("untrack terminal: commit tx: %w", err)
	}

	if len(ids) > 0 {
		s.logger.Info("untracked terminal orders", "count", len(ids), "cutoff", cutoff)
	}
	return ids, nil
}
