// Package engine implements the order state transition engine.
//
// The engine is pure: it takes an order and canonical events and computes the
// next order state. It performs no I/O. Persistence and checkpoint
// advancement belong to the store package; the scheduler wires them together.
//
// LIFECYCLE:
//
//	(none) --order-created--> pending --order-started--> started
//	started --payment-confirmed--> in_progress --order-completed--> completed
//	pending|started|in_progress --order-cancelled--> cancelled
//
// sub-order-updated is legal in pending, started and in_progress and does
// not change the order state. Anything else is an INVALID_TRANSITION and
// leaves the order untouched.
//
// CHANGE HISTORY:
//
// While the order is pending, sub-order edits are applied in place. From
// started on, every changed field also appends exactly one change item keyed
// by the sub-order's date key. Fields whose canonical value is unchanged
// append nothing.
//
// IDEMPOTENCY:
//
// Events at or below the order's last applied sequence id are no-ops.
// ApplyBatch works on a clone, so a caller that loses the checkpoint race
// simply discards the result.
package engine
