// Package view derives read models of an order and serves them through the
// read-through cache.
package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ordersync/internal/cache"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/value"
)

// ErrNotFound is returned for an order no event has created.
var ErrNotFound = errors.New("order not found")

// OrderLoader reads persisted orders.
type OrderLoader interface {
	LoadOrder(ctx context.Context, id string) (*order.Order, bool, error)
}

// SummaryKey is the cache key of an order's summary view.
func SummaryKey(id string) string { return "order:" + id + ":summary" }

// HistoryKey is the cache key of an order's history view.
func HistoryKey(id string) string { return "order:" + id + ":history" }

// Change is one change-history item as served to readers.
type Change struct {
	SequenceID    int64           `json:"sequenceId"`
	DateKey       string          `json:"dateKey"`
	FieldName     string          `json:"fieldName"`
	PreviousValue json.RawMessage `json:"previousValue"`
	NewValue      json.RawMessage `json:"newValue"`
	ChangedBy     string          `json:"changedBy"`
	ChangedAt     time.Time       `json:"changedAt"`
}

// SubOrder is one delivery date in a Summary.
type SubOrder struct {
	DateKey string       `json:"dateKey"`
	State   string       `json:"state"`
	Fields  value.Object `json:"fields"`
	Total   int64        `json:"total"`
	Changes int          `json:"changes"`
}

// Summary is the order state view.
type Summary struct {
	ID                string     `json:"id"`
	State             string     `json:"state"`
	LastSequenceID    int64      `json:"lastSequenceId"`
	SubOrders         []SubOrder `json:"subOrders"`
	ChangedAfterStart bool       `json:"changedAfterStart"`
	Currency          string     `json:"currency,omitempty"`
	Total             int64      `json:"total"`
	PaidTotal         int64      `json:"paidTotal"`
	PaidDisplay       string     `json:"paidDisplay"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Views serves order views.
type Views struct {
	orders OrderLoader
	cache  *cache.Cache
	ttl    time.Duration
}

// New creates Views reading through c with entries living for ttl.
func New(orders OrderLoader, c *cache.Cache, ttl time.Duration) *Views {
	return &Views{orders: orders, cache: c, ttl: ttl}
}

// Summary returns the summary of order id.
func (v *Views) Summary(ctx context.Context, id string) (Summary, error) {
	return cache.GetOrComputeJSON(ctx, v.cache, SummaryKey(id), v.ttl, func(ctx context.Context) (Summary, error) {
		o, err := v.load(ctx, id)
		if err != nil {
			return Summary{}, err
		}
		return BuildSummary(o), nil
	})
}

// History returns every change item of order id ordered by sequence id.
func (v *Views) History(ctx context.Context, id string) ([]Change, error) {
	return cache.GetOrComputeJSON(ctx, v.cache, HistoryKey(id), v.ttl, func(ctx context.Context) ([]Change, error) {
		o, err := v.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return BuildHistory(o), nil
	})
}

// InvalidateEntity drops both cached views of id.
func (v *Views) InvalidateEntity(ctx context.Context, id string) error {
	return v.cache.Invalidate(ctx, SummaryKey(id), HistoryKey(id))
}

func (v *Views) load(ctx context.Context, id string) (*order.Order, error) {
	o, found, err := v.orders.LoadOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, nil
}

// BuildSummary derives the summary view of o.
func BuildSummary(o *order.Order) Summary {
	s := Summary{
		ID:                o.ID,
		State:             o.State.String(),
		LastSequenceID:    o.LastSeq,
		SubOrders:         make([]SubOrder, 0, o.SubOrders.Len()),
		ChangedAfterStart: o.HasChangedAfterStart(),
		Currency:          o.Currency,
		Total:             int64(o.Total()),
		PaidTotal:         int64(o.PaidTotal),
		PaidDisplay:       o.PaidTotal.Format(o.Currency),
		UpdatedAt:         o.UpdatedAt,
	}
	for _, so := range o.SubOrders.All() {
		fields := so.Fields
		if fields == nil {
			fields = value.Object{}
		}
		s.SubOrders = append(s.SubOrders, SubOrder{
			DateKey: string(so.DateKey),
			State:   string(so.State),
			Fields:  fields,
			Total:   int64(so.Total()),
			Changes: len(so.History),
		})
	}
	return s
}

// BuildHistory derives the history view of o.
func BuildHistory(o *order.Order) []Change {
	items := o.SubOrders.History()
	out := make([]Change, 0, len(items))
	for _, item := range items {
		out = append(out, Change{
			SequenceID:    item.Seq,
			DateKey:       string(item.DateKey),
			FieldName:     item.FieldName,
			PreviousValue: canonical(item.Previous),
			NewValue:      canonical(item.New),
			ChangedBy:     item.ChangedBy,
			ChangedAt:     item.ChangedAt,
		})
	}
	return out
}

func canonical(v value.Value) json.RawMessage {
	if v == nil {
		v = value.Null{}
	}
	return json.RawMessage(value.MustCanonical(v))
}
