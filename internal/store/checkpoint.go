package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ordersync/internal/syncerr"
)

// Checkpoint is the last processed sequence id of one entity.
type Checkpoint struct {
	EntityID  string    `json:"entityId"`
	LastSeq   int64     `json:"lastSequenceId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Get returns the checkpoint for entityID. found is false when the entity
// has never been committed.
func (s *Store) Get(ctx context.Context, entityID string) (seq int64, found bool, err error) {
	cp, found, err := s.Checkpoint(ctx, entityID)
	return cp.LastSeq, found, err
}

// Checkpoint returns the full checkpoint record for entityID.
func (s *Store) Checkpoint(ctx context.Context, entityID string) (Checkpoint, bool, error) {
	return readCheckpoint(ctx, s.db, entityID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readCheckpoint(ctx context.Context, q queryRower, entityID string) (Checkpoint, bool, error) {
	cp := Checkpoint{EntityID: entityID}
	var updated int64
	err := q.QueryRowContext(ctx, `
		SELECT last_seq, updated_at FROM checkpoints WHERE entity_id = ?
	`, entityID).Scan(&cp.LastSeq, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, false, nil
	}
	if err != nil {
		return cp, false, fmt.Errorf("read checkpoint %s: %w", entityID, err)
	}
	cp.UpdatedAt = fromUnixNano(updated)
	return cp, true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// advance moves the checkpoint to newSeq only if newSeq is greater than the
// stored value. Returns false when the row was not written.
func advance(ctx context.Context, x execer, entityID string, newSeq int64, now time.Time) (bool, error) {
	res, err := x.ExecContext(ctx, `
		INSERT INTO checkpoints (entity_id, last_seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			last_seq = excluded.last_seq,
			updated_at = excluded.updated_at
		WHERE checkpoints.last_seq < excluded.last_seq
	`, entityID, newSeq, unixNano(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Advance moves the checkpoint forward to newSeq.
// Returns a STALE_CHECKPOINT error when newSeq is not greater than the
// stored value; of two concurrent writers of the same value exactly one wins.
func (s *Store) Advance(ctx context.Context, entityID string, newSeq int64) error {
	if newSeq <= 0 {
		return syncerr.Stale(entityID, 0, newSeq)
	}

	ok, err := advance(ctx, s.db, entityID, newSeq, s.now())
	if err != nil {
		return fmt.Errorf("advance checkpoint %s: %w", entityID, err)
	}
	if ok {
		return nil
	}

	current, _, err := s.Get(ctx, entityID)
	if err != nil {
		return err
	}
	return syncerr.Stale(entityID, current, newSeq)
}

// Reset sets the checkpoint to seq unconditionally. It is the only way to
// move a checkpoint backwards and is logged at WARN.
func (s *Store) Reset(ctx context.Context, entityID string, seq int64) error {
	if seq < 0 {
		return fmt.Errorf("reset checkpoint %s: negative sequence id %d", entityID, seq)
	}

	previous, found, err := s.Get(ctx, entityID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (entity_id, last_seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			last_seq = excluded.last_seq,
			updated_at = excluded.updated_at
	`, entityID, seq, unixNano(s.now()))
	if err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", entityID, err)
	}

	s.logger.Warn("checkpoint reset",
		"entity", entityID,
		"previous", previous,
		"existed", found,
		"seq", seq,
	)
	return nil
}
