package order

import (
	"fmt"
	"time"

	"github.com/roach88/ordersync/internal/value"
)

// Order is the root aggregate.
type Order struct {
	ID        string
	State     State
	SubOrders SubOrders

	// LastSeq is the sequence id of the last applied event.
	LastSeq int64

	PaidTotal Money
	Currency  string

	CreatedAt time.Time
	UpdatedAt time.Time

	// TerminalAt is when the order reached completed or cancelled.
	TerminalAt time.Time
}

// New returns an order with no state yet.
func New(id string) *Order {
	return &Order{ID: id}
}

// Clone returns a deep copy. The engine works on clones so a losing writer
// can discard its computation without touching shared state.
func (o *Order) Clone() *Order {
	cp := *o
	cp.SubOrders = o.SubOrders.Clone()
	return &cp
}

// HasChangedAfterStart reports whether any sub-order has history.
// Runs in O(number of date keys).
func (o *Order) HasChangedAfterStart() bool {
	return o.SubOrders.HasHistory()
}

// Total sums quantity x unitPrice over live sub-orders.
func (o *Order) Total() Money {
	var total Money
	for _, so := range o.SubOrders.All() {
		if so.State == SubOrderCancelled {
			continue
		}
		total = total.Add(so.Total())
	}
	return total
}

// SubOrder is the part of an order delivered on one date.
type SubOrder struct {
	DateKey DateKey
	State   SubOrderState
	Fields  value.Object
	History []ChangeItem
}

// Total returns quantity x unitPrice when both fields are integers.
func (s *SubOrder) Total() Money {
	qty, ok := s.Fields.Int64("quantity")
	if !ok {
		return 0
	}
	price, ok := s.Fields.Int64("unitPrice")
	if !ok {
		return 0
	}
	return Money(price).Mul(qty)
}

func (s *SubOrder) clone() *SubOrder {
	cp := *s
	cp.Fields = s.Fields.Clone()
	cp.History = append([]ChangeItem(nil), s.History...)
	return &cp
}

// ChangeItem is an immutable record of a post-start modification.
type ChangeItem struct {
	Seq       int64
	DateKey   DateKey
	FieldName string
	Previous  value.Value
	New       value.Value
	ChangedBy string
	ChangedAt time.Time
}

// SubOrders maps date keys to sub-orders, preserving insertion order.
// The zero value is ready to use.
type SubOrders struct {
	keys  []DateKey
	byKey map[DateKey]*SubOrder
}

// Len returns the number of sub-orders.
func (s *SubOrders) Len() int { return len(s.keys) }

// Keys returns date keys in insertion order.
func (s *SubOrders) Keys() []DateKey {
	return append([]DateKey(nil), s.keys...)
}

// Get returns the sub-order for a date key.
func (s *SubOrders) Get(key DateKey) (*SubOrder, bool) {
	so, ok := s.byKey[key]
	return so, ok
}

// Put inserts or replaces a sub-order. Replacing keeps the original position.
func (s *SubOrders) Put(so SubOrder) {
	if s.byKey == nil {
		s.byKey = make(map[DateKey]*SubOrder)
	}
	if _, exists := s.byKey[so.DateKey]; !exists {
		s.keys = append(s.keys, so.DateKey)
	}
	cp := so
	s.byKey[so.DateKey] = &cp
}

// All returns the sub-orders in insertion order.
func (s *SubOrders) All() []*SubOrder {
	out := make([]*SubOrder, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.byKey[k])
	}
	return out
}

// AppendHistory records a change for an existing sub-order.
// The item's DateKey selects the sub-order.
func (s *SubOrders) AppendHistory(item ChangeItem) error {
	so, ok := s.byKey[item.DateKey]
	if !ok {
		return fmt.Errorf("append history: no sub-order for date %s", item.DateKey)
	}
	so.History = append(so.History, item)
	return nil
}

// HasHistory reports whether any date key has a non-empty history.
func (s *SubOrders) HasHistory() bool {
	for _, k := range s.keys {
		if len(s.byKey[k].History) > 0 {
			return true
		}
	}
	return false
}

// History returns every change item across date keys ordered by sequence id,
// then date key, then field name.
func (s *SubOrders) History() []ChangeItem {
	var items []ChangeItem
	for _, k := range s.keys {
		items = append(items, s.byKey[k].History...)
	}
	sortHistory(items)
	return items
}

// Clone returns a deep copy.
func (s SubOrders) Clone() SubOrders {
	cp := SubOrders{
		keys:  append([]DateKey(nil), s.keys...),
		byKey: make(map[DateKey]*SubOrder, len(s.byKey)),
	}
	for k, so := range s.byKey {
		cp.byKey[k] = so.clone()
	}
	return cp
}
