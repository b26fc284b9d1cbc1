// Package order defines the order aggregate: the Order root, its date-keyed
// Sub-Orders, the append-only Change-History, lifecycle states and Money.
//
// Orders are mutated only by the engine package through event application.
// Sub-orders are addressed by DateKey within an explicit mapping type that
// preserves insertion order for display; history is appended through
// SubOrders.AppendHistory and never modified afterwards.
package order
