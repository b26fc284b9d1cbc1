package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/syncerr"
)

// CommitOrder atomically verifies that the checkpoint of o.ID still equals
// expected, advances it to newSeq, upserts the order with its sub-orders and
// appends history.
//
// Returns a STALE_CHECKPOINT error, writing nothing, when another writer
// moved the checkpoint or newSeq does not advance it. History items that
// were already committed are ignored.
func (s *Store) CommitOrder(ctx context.Context, o *order.Order, expected, newSeq int64, history []order.ChangeItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit order %s: begin tx: %w", o.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	cp, _, err := readCheckpoint(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	if cp.LastSeq != expected || newSeq <= cp.LastSeq {
		return syncerr.Stale(o.ID, cp.LastSeq, newSeq)
	}

	ok, err := advance(ctx, tx, o.ID, newSeq, s.now())
	if err != nil {
		return fmt.Errorf("commit order %s: advance: %w", o.ID, err)
	}
	if !ok {
		return syncerr.Stale(o.ID, cp.LastSeq, newSeq)
	}

	// Only skipped records so far: the checkpoint moves, the order does not
	// exist yet.
	if o.State != order.StateNone {
		if err := writeOrder(ctx, tx, o); err != nil {
			return fmt.Errorf("commit order %s: %w", o.ID, err)
		}
	}

	for _, item := range history {
		if err := appendHistory(ctx, tx, o.ID, item); err != nil {
			return fmt.Errorf("commit order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order %s: commit tx: %w", o.ID, err)
	}

	s.logger.Debug("order committed",
		"entity", o.ID,
		"state", o.State,
		"checkpoint", newSeq,
		"history", len(history),
	)
	return nil
}

func writeOrder(ctx context.Context, tx *sql.Tx, o *order.Order) error {
	var terminal any
	if !o.TerminalAt.IsZero() {
		terminal = unixNano(o.TerminalAt)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders
		(id, state, last_seq, paid_total, currency, created_at, updated_at, terminal_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			last_seq = excluded.last_seq,
			paid_total = excluded.paid_total,
			currency = excluded.currency,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			terminal_at = excluded.terminal_at
	`,
		o.ID,
		string(o.State),
		o.LastSeq,
		int64(o.PaidTotal),
		o.Currency,
		unixNano(o.CreatedAt),
		unixNano(o.UpdatedAt),
		terminal,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	for pos, so := range o.SubOrders.All() {
		fields, err := marshalFields(so.Fields)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sub_orders (order_id, date_key, position, state, fields)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(order_id, date_key) DO UPDATE SET
				position = excluded.position,
				state = excluded.state,
				fields = excluded.fields
		`, o.ID, string(so.DateKey), pos, string(so.State), fields)
		if err != nil {
			return fmt.Errorf("upsert sub-order %s: %w", so.DateKey, err)
		}
	}
	return nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, orderID string, item order.ChangeItem) error {
	prev, err := marshalValue(item.Previous)
	if err != nil {
		return err
	}
	next, err := marshalValue(item.New)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO change_history
		(order_id, date_key, seq, field_name, previous_value, new_value, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id, date_key, seq, field_name) DO NOTHING
	`,
		orderID,
		string(item.DateKey),
		item.Seq,
		item.FieldName,
		prev,
		next,
		item.ChangedBy,
		unixNano(item.ChangedAt),
	)
	if err != nil {
		return fmt.Errorf("append history (seq=%d, field=%s): %w", item.Seq, item.FieldName, err)
	}
	return nil
}

// LoadOrder reads an order with its sub-orders and history.
// found is false when no event has created the order yet.
func (s *Store) LoadOrder(ctx context.Context, id string) (*order.Order, bool, error) {
	o := order.New(id)

	var state string
	var paid, created, updated int64
	var terminal sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT state, last_seq, paid_total, currency, created_at, updated_at, terminal_at
		FROM orders
		WHERE id = ?
	`, id).Scan(&state, &o.LastSeq, &paid, &o.Currency, &created, &updated, &terminal)
	if errors.Is(err, sql.ErrNoRows) {
		return o, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load order %s: %w", id, err)
	}

	if o.State, err = order.ParseState(state); err != nil {
		return nil, false, fmt.Errorf("load order %s: %w", id, err)
	}
	o.PaidTotal = order.Money(paid)
	o.CreatedAt = fromUnixNano(created)
	o.UpdatedAt = fromUnixNano(updated)
	if terminal.Valid {
		o.TerminalAt = fromUnixNano(terminal.Int64)
	}

	if err := s.loadSubOrders(ctx, o); err != nil {
		return nil, false, err
	}
	if err := s.loadHistory(ctx, o); err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (s *Store) loadSubOrders(ctx context.Context, o *order.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_key, state, fields
		FROM sub_orders
		WHERE order_id = ?
		ORDER BY position ASC, date_key COLLATE BINARY ASC
	`, o.ID)
	if err != nil {
		return fmt.Errorf("query sub-orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dateKey, state, fieldsJSON string
		if err := rows.Scan(&dateKey, &state, &fieldsJSON); err != nil {
			return fmt.Errorf("scan sub-order: %w", err)
		}
		fields, err := unmarshalFields(fieldsJSON)
		if err != nil {
			return err
		}
		st := order.SubOrderState(state)
		if !st.Valid() {
			return fmt.Errorf("sub-order %s: unknown state %q", dateKey, state)
		}
		o.SubOrders.Put(order.SubOrder{
			DateKey: order.DateKey(dateKey),
			State:   st,
			Fields:  fields,
		})
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sub-orders: %w", err)
	}
	return nil
}

func (s *Store) loadHistory(ctx context.Context, o *order.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_key, seq, field_name, previous_value, new_value, changed_by, changed_at
		FROM change_history
		WHERE order_id = ?
		ORDER BY seq ASC, date_key COLLATE BINARY ASC, field_name COLLATE BINARY ASC, id ASC
	`, o.ID)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item order.ChangeItem
		var dateKey, prevJSON, nextJSON string
		var changedAt int64
		if err := rows.Scan(&dateKey, &item.Seq, &item.FieldName, &prevJSON, &nextJSON, &item.ChangedBy, &changedAt); err != nil {
			return fmt.Errorf("scan history: %w", err)
		}
		item.DateKey = order.DateKey(dateKey)
		item.ChangedAt = fromUnixNano(changedAt)
		if item.Previous, err = unmarshalValue(prevJSON); err != nil {
			return err
		}
		if item.New, err = unmarshalValue(nextJSON); err != nil {
			return err
		}
		if err := o.SubOrders.AppendHistory(item); err != nil {
			return fmt.Errorf("load history: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate history: %w", err)
	}
	return nil
}
