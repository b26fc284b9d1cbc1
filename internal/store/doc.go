// Package store provides SQLite-backed durable storage for ordersync.
//
// The store holds:
//   - Checkpoints: last processed sequence id per entity
//   - Orders and sub-orders: the derived order state
//   - Change history: append-only post-start modifications
//   - Tracked set: entities the scheduler visits
//
// # Checkpoint Discipline
//
// Checkpoints only move forward. Advance is a single conditional upsert, so
// exactly one writer wins for each strictly-increasing value and every loser
// gets STALE_CHECKPOINT. CommitOrder verifies the expected checkpoint and
// writes the order, its new history and the advanced checkpoint in one
// transaction. Reset is the only way to move a checkpoint backwards.
//
// # Append-Only History
//
// change_history rejects UPDATE and DELETE with triggers. Inserts use
// UNIQUE(order_id, date_key, seq, field_name) with ON CONFLICT DO NOTHING,
// so re-committing the same history is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
