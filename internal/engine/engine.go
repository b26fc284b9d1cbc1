package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/syncerr"
	"github.com/roach88/ordersync/internal/value"
)

// Engine applies canonical events to orders.
// Safe for concurrent use; it holds no per-order state.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of applying one entity's batch.
type Result struct {
	// Order is the updated clone. The input order is never modified.
	Order *order.Order

	// Applied counts events applied to the order.
	Applied int

	// Skipped counts rejected raw records (malformed, unknown kind) newer
	// than the checkpoint that were stepped over.
	Skipped int

	// Checkpoint is the sequence id to commit. Equal to the input checkpoint
	// when nothing was processed.
	Checkpoint int64

	// Rejected is the INVALID_TRANSITION that stopped the batch, if any.
	// Events before it are applied and counted in Checkpoint; it and
	// everything after it are not.
	Rejected error
}

// Advanced reports whether the checkpoint moved.
func (r Result) Advanced(from int64) bool {
	return r.Checkpoint > from
}

// ApplyBatch applies the batch's events newer than checkpoint in ascending
// sequence order, stopping at the first invalid transition.
//
// The new checkpoint is the greatest sequence id processed: applied events
// plus rejected records that carried a sequence id. When a transition is
// rejected, only ids below the rejected event count.
func (e *Engine) ApplyBatch(o *order.Order, checkpoint int64, batch event.Batch) Result {
	work := o.Clone()
	res := Result{Order: work, Checkpoint: checkpoint}

	selected := event.Select(batch.Events, checkpoint)
	ceiling := int64(-1)
	for _, ev := range selected {
		if err := e.Apply(work, ev); err != nil {
			res.Rejected = err
			ceiling = ev.SequenceID
			break
		}
		res.Applied++
		res.Checkpoint = ev.SequenceID
	}

	for _, r := range batch.Rejected {
		seq, ok := r.Raw.Seq()
		if !ok || seq <= checkpoint {
			continue
		}
		if ceiling >= 0 && seq >= ceiling {
			continue
		}
		res.Skipped++
		if seq > res.Checkpoint {
			res.Checkpoint = seq
		}
	}

	if res.Checkpoint > work.LastSeq {
		work.LastSeq = res.Checkpoint
	}
	return res
}

// Apply applies a single event to o in place. Events at or below o.LastSeq
// are ignored. On error o is unchanged.
func (e *Engine) Apply(o *order.Order, ev event.Event) error {
	if ev.SequenceID <= o.LastSeq {
		e.logger.Debug("event already applied, skipping",
			"entity", o.ID,
			"seq", ev.SequenceID,
			"last_seq", o.LastSeq,
		)
		return nil
	}

	if err := e.apply(o, ev); err != nil {
		return err
	}

	o.LastSeq = ev.SequenceID
	o.UpdatedAt = ev.OccurredAt

	e.logger.Debug("event applied",
		"entity", o.ID,
		"seq", ev.SequenceID,
		"kind", ev.Kind,
		"state", o.State,
	)
	return nil
}

func (e *Engine) apply(o *order.Order, ev event.Event) error {
	from := o.State
	reject := func() error {
		return syncerr.InvalidTransition(o.ID, ev.SequenceID, from.String(), string(ev.Kind))
	}

	switch p := ev.Payload.(type) {
	case event.OrderCreated:
		if from != order.StateNone {
			return reject()
		}
		o.State = order.StatePending
		o.Currency = p.Currency
		o.CreatedAt = ev.OccurredAt
		for _, spec := range p.SubOrders {
			o.SubOrders.Put(order.SubOrder{
				DateKey: spec.DateKey,
				State:   order.SubOrderPending,
				Fields:  withoutNulls(spec.Fields),
			})
		}

	case event.OrderStarted:
		if from != order.StatePending {
			return reject()
		}
		o.State = order.StateStarted
		cascade(o, order.SubOrderActive, order.SubOrderPending)

	case event.PaymentConfirmed:
		if from != order.StateStarted && from != order.StateInProgress {
			return reject()
		}
		o.State = order.StateInProgress
		o.PaidTotal = o.PaidTotal.Add(p.Amount)
		if o.Currency == "" {
			o.Currency = p.Currency
		}

	case event.OrderCompleted:
		if from != order.StateInProgress {
			return reject()
		}
		o.State = order.StateCompleted
		o.TerminalAt = ev.OccurredAt
		cascade(o, order.SubOrderDelivered, order.SubOrderActive)

	case event.OrderCancelled:
		switch from {
		case order.StatePending, order.StateStarted, order.StateInProgress:
		default:
			return reject()
		}
		o.State = order.StateCancelled
		o.TerminalAt = ev.OccurredAt
		cascade(o, order.SubOrderCancelled, order.SubOrderActive, order.SubOrderPending)

	case event.SubOrderUpdated:
		// Completed orders still accept edits (recorded in history);
		// cancelled orders do not.
		switch from {
		case order.StatePending, order.StateStarted, order.StateInProgress, order.StateCompleted:
		default:
			return reject()
		}
		return updateSubOrder(o, ev.SequenceID, ev, p)

	default:
		return fmt.Errorf("apply event %d: unsupported payload %T", ev.SequenceID, ev.Payload)
	}
	return nil
}

// cascade moves sub-orders in any of the from states to state.
// Order-level transitions do not write change history.
func cascade(o *order.Order, to order.SubOrderState, from ...order.SubOrderState) {
	for _, so := range o.SubOrders.All() {
		for _, f := range from {
			if so.State == f {
				so.State = to
				break
			}
		}
	}
}

func updateSubOrder(o *order.Order, seq int64, ev event.Event, p event.SubOrderUpdated) error {
	recordHistory := o.State.Started()

	so, exists := o.SubOrders.Get(p.DateKey)
	if !exists {
		initial := order.SubOrderPending
		if recordHistory {
			initial = order.SubOrderActive
		}
		o.SubOrders.Put(order.SubOrder{DateKey: p.DateKey, State: initial, Fields: value.Object{}})
		so, _ = o.SubOrders.Get(p.DateKey)
	}
	if so.Fields == nil {
		so.Fields = value.Object{}
	}

	var changes []order.ChangeItem
	for _, name := range p.Fields.SortedKeys() {
		next := p.Fields[name]
		prev, had := so.Fields[name]
		if !had {
			prev = value.Null{}
		}
		if value.Equal(prev, next) {
			continue
		}
		if _, isNull := next.(value.Null); isNull {
			delete(so.Fields, name)
		} else {
			so.Fields[name] = next
		}
		changes = append(changes, changeItem(seq, ev, p, name, prev, next))
	}

	if p.State != "" && p.State != so.State {
		prev := so.State
		so.State = p.State
		changes = append(changes, changeItem(seq, ev, p, "state", value.String(prev), value.String(p.State)))
	}

	if !recordHistory {
		return nil
	}
	for _, item := range changes {
		if err := o.SubOrders.AppendHistory(item); err != nil {
			return err
		}
	}
	return nil
}

func changeItem(seq int64, ev event.Event, p event.SubOrderUpdated, field string, prev, next value.Value) order.ChangeItem {
	return order.ChangeItem{
		Seq:       seq,
		DateKey:   p.DateKey,
		FieldName: field,
		Previous:  prev,
		New:       next,
		ChangedBy: p.ChangedBy,
		ChangedAt: ev.OccurredAt,
	}
}

func withoutNulls(fields value.Object) value.Object {
	out := make(value.Object, len(fields))
	for k, v := range fields {
		if _, isNull := v.(value.Null); isNull {
			continue
		}
		out[k] = v
	}
	return out
}
