package event

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/syncerr"
	"github.com/roach88/ordersync/internal/value"
)

// DefaultActor is recorded as changedBy when neither the payload nor the
// record names one.
const DefaultActor = "system"

// Normalizer converts raw records into canonical events.
// Location determines date keys; nil means UTC.
type Normalizer struct {
	Location *time.Location
}

// Normalize validates a raw record and builds its canonical event.
func (n Normalizer) Normalize(raw Raw) (Event, error) {
	entityID := norm.NFC.String(strings.TrimSpace(raw.ResourceID))

	seq, ok := raw.Seq()
	if !ok {
		return Event{}, syncerr.Malformed(entityID, 0, "missing sequenceId")
	}
	if seq <= 0 {
		return Event{}, syncerr.Malformed(entityID, seq, "sequenceId must be positive")
	}
	if entityID == "" {
		return Event{}, syncerr.Malformed("", seq, "missing resourceId")
	}
	if strings.TrimSpace(raw.EventType) == "" {
		return Event{}, syncerr.Malformed(entityID, seq, "missing eventType")
	}
	if strings.TrimSpace(raw.CreatedAt) == "" {
		return Event{}, syncerr.Malformed(entityID, seq, "missing createdAt")
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return Event{}, syncerr.Malformed(entityID, seq, "invalid createdAt %q", raw.CreatedAt)
	}

	kind, ok := ParseKind(raw.EventType)
	if !ok {
		return Event{}, syncerr.UnknownKind(entityID, seq, raw.EventType)
	}

	fields, err := value.ParseObject(raw.Payload)
	if err != nil {
		return Event{}, syncerr.Malformed(entityID, seq, "invalid payload: %v", err)
	}

	payload, err := n.payload(kind, fields, raw.Actor)
	if err != nil {
		return Event{}, syncerr.Malformed(entityID, seq, "%s payload: %v", kind, err)
	}

	return Event{
		SequenceID: seq,
		EntityID:   entityID,
		Kind:       kind,
		Payload:    payload,
		OccurredAt: occurredAt.UTC(),
		Actor:      actorOr(raw.Actor, DefaultActor),
	}, nil
}

func (n Normalizer) payload(kind Kind, fields value.Object, actor string) (Payload, error) {
	switch kind {
	case KindOrderCreated:
		return n.orderCreated(fields)
	case KindOrderStarted:
		return OrderStarted{}, nil
	case KindSubOrderUpdated:
		return n.subOrderUpdated(fields, actor)
	case KindPaymentConfirmed:
		amount, ok := fields.Int64("amount")
		if !ok {
			return nil, fmt.Errorf("amount must be an integer in minor units")
		}
		currency, _ := fields.Str("currency")
		return PaymentConfirmed{Amount: order.Money(amount), Currency: strings.ToUpper(currency)}, nil
	case KindOrderCompleted:
		return OrderCompleted{}, nil
	case KindOrderCancelled:
		reason, _ := fields.Str("reason")
		return OrderCancelled{Reason: reason}, nil
	default:
		return nil, fmt.Errorf("no payload schema for kind %s", kind)
	}
}

func (n Normalizer) orderCreated(fields value.Object) (Payload, error) {
	currency, _ := fields.Str("currency")
	created := OrderCreated{Currency: strings.ToUpper(currency)}

	raw, present := fields["subOrders"]
	if !present {
		return created, nil
	}
	list, ok := raw.(value.Array)
	if !ok {
		return nil, fmt.Errorf("subOrders must be an array")
	}
	seen := make(map[order.DateKey]struct{}, len(list))
	for i, item := range list {
		obj, ok := item.(value.Object)
		if !ok {
			return nil, fmt.Errorf("subOrders[%d] must be an object", i)
		}
		key, err := n.dateKey(obj["date"])
		if err != nil {
			return nil, fmt.Errorf("subOrders[%d]: %w", i, err)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("subOrders[%d]: duplicate date %s", i, key)
		}
		seen[key] = struct{}{}
		subFields, err := objectField(obj, "fields")
		if err != nil {
			return nil, fmt.Errorf("subOrders[%d]: %w", i, err)
		}
		created.SubOrders = append(created.SubOrders, SubOrderSpec{DateKey: key, Fields: subFields})
	}
	return created, nil
}

func (n Normalizer) subOrderUpdated(fields value.Object, actor string) (Payload, error) {
	key, err := n.dateKey(fields["date"])
	if err != nil {
		return nil, err
	}
	subFields, err := objectField(fields, "fields")
	if err != nil {
		return nil, err
	}

	upd := SubOrderUpdated{DateKey: key, Fields: subFields}
	if s, ok := fields.Str("state"); ok {
		st := order.SubOrderState(strings.ToLower(s))
		if !st.Valid() {
			return nil, fmt.Errorf("unknown sub-order state %q", s)
		}
		upd.State = st
	}
	if len(upd.Fields) == 0 && upd.State == "" {
		return nil, fmt.Errorf("update carries neither fields nor state")
	}

	changedBy, _ := fields.Str("changedBy")
	upd.ChangedBy = actorOr(changedBy, actorOr(actor, DefaultActor))
	return upd, nil
}

// dateKey accepts a date key ("2024-05-01"), an RFC 3339 timestamp, or
// integer Unix milliseconds.
func (n Normalizer) dateKey(v value.Value) (order.DateKey, error) {
	switch d := v.(type) {
	case value.String:
		if key, err := order.ParseDateKey(string(d)); err == nil {
			return key, nil
		}
		ts, err := time.Parse(time.RFC3339Nano, string(d))
		if err != nil {
			return "", fmt.Errorf("invalid date %q", string(d))
		}
		return order.DateKeyOf(ts, n.Location), nil
	case value.Int:
		return order.DateKeyOf(time.UnixMilli(int64(d)), n.Location), nil
	case nil:
		return "", fmt.Errorf("missing date")
	default:
		return "", fmt.Errorf("date must be a string or integer, got %T", v)
	}
}

func objectField(obj value.Object, key string) (value.Object, error) {
	v, ok := obj[key]
	if !ok {
		return value.Object{}, nil
	}
	switch o := v.(type) {
	case value.Object:
		return o, nil
	case value.Null:
		return value.Object{}, nil
	default:
		return nil, fmt.Errorf("%s must be an object", key)
	}
}

func actorOr(actor, fallback string) string {
	actor = norm.NFC.String(strings.TrimSpace(actor))
	if actor == "" {
		return fallback
	}
	return actor
}
