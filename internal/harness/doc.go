// Package harness runs conformance scenarios against the synchronization
// engine.
//
// A scenario publishes marketplace records to an in-memory source, triggers
// scheduler runs against a private SQLite store, and asserts on run outcomes
// and the persisted order state.
//
// # Scenario Format
//
//	name: quantity_edit_after_start
//	description: "Post-start edits append history"
//	timezone: Asia/Ho_Chi_Minh
//	setup:
//	  - { seq: 1, type: order-created, entity: E1, payload: {...} }
//	runs:
//	  - events:
//	      - { seq: 2, type: order-started, entity: E1 }
//	  - reset: { entity: E1, seq: 1 }
//	assertions:
//	  - { type: outcome, entity: E1, run: 1, expect: applied }
//	  - { type: checkpoint, entity: E1, expect: 2 }
//	  - { type: field, entity: E1, date: "2024-05-02", field: quantity, expect: 3 }
//
// # Assertion Types
//
//   - outcome, error_code: entity outcome in a run (run 0 = last)
//   - checkpoint: persisted checkpoint
//   - state: order lifecycle state ("none" before creation)
//   - history_count: number of change-history items
//   - field: sub-order field value (null = absent)
//   - changed_after_start: derived flag
//
// # Deterministic Testing
//
// Every scenario runs with a fixed clock (Epoch), a fixed run id and one
// worker, so snapshots are byte-identical across runs and can be compared
// with golden files (see RunWithGolden).
package harness
