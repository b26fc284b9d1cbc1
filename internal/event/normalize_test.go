package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/syncerr"
	"github.com/roach88/ordersync/internal/value"
)

func raw(seq int64, eventType, payload string) Raw {
	return Raw{
		SequenceID: Int64(seq),
		EventType:  eventType,
		ResourceID: "E1",
		CreatedAt:  "2024-05-01T08:00:00Z",
		Payload:    json.RawMessage(payload),
	}
}

func TestNormalize_OrderCreated(t *testing.T) {
	n := Normalizer{}
	ev, err := n.Normalize(raw(1, "order/created", `{
		"currency": "vnd",
		"subOrders": [
			{"date": "2024-05-02", "fields": {"quantity": 2, "unitPrice": 45000}},
			{"date": 1714694400000, "fields": {"quantity": 1}}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), ev.SequenceID)
	assert.Equal(t, "E1", ev.EntityID)
	assert.Equal(t, KindOrderCreated, ev.Kind)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), ev.OccurredAt)
	assert.Equal(t, DefaultActor, ev.Actor)

	created, ok := ev.Payload.(OrderCreated)
	require.True(t, ok)
	assert.Equal(t, "VND", created.Currency)
	require.Len(t, created.SubOrders, 2)
	assert.Equal(t, order.DateKey("2024-05-02"), created.SubOrders[0].DateKey)
	assert.Equal(t, value.Object{"quantity": value.Int(2), "unitPrice": value.Int(45000)}, created.SubOrders[0].Fields)
	assert.Equal(t, order.DateKey("2024-05-03"), created.SubOrders[1].DateKey)
}

func TestNormalize_SubOrderUpdated(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*3600)
	n := Normalizer{Location: hcm}

	r := raw(4, "SUB_ORDER_UPDATED", `{"date": "2024-05-02T20:00:00Z", "fields": {"quantity": 3, "note": null}, "state": "Cancelled"}`)
	r.Actor = "booker-7"
	ev, err := n.Normalize(r)
	require.NoError(t, err)

	upd, ok := ev.Payload.(SubOrderUpdated)
	require.True(t, ok)
	assert.Equal(t, order.DateKey("2024-05-03"), upd.DateKey)
	assert.Equal(t, value.Int(3), upd.Fields["quantity"])
	assert.Equal(t, value.Null{}, upd.Fields["note"])
	assert.Equal(t, order.SubOrderCancelled, upd.State)
	assert.Equal(t, "booker-7", upd.ChangedBy)
	assert.Equal(t, "booker-7", ev.Actor)
}

func TestNormalize_SubOrderUpdated_ChangedByFromPayload(t *testing.T) {
	ev, err := Normalizer{}.Normalize(raw(4, "sub-order-updated", `{"date": "2024-05-02", "fields": {"quantity": 3}, "changedBy": "partner-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "partner-1", ev.Payload.(SubOrderUpdated).ChangedBy)
}

func TestNormalize_PaymentConfirmed(t *testing.T) {
	ev, err := Normalizer{}.Normalize(raw(7, "payment-confirmed", `{"amount": 1250000, "currency": "VND"}`))
	require.NoError(t, err)
	assert.Equal(t, PaymentConfirmed{Amount: 1250000, Currency: "VND"}, ev.Payload)
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
	}{
		{"missing sequence", Raw{EventType: "order-started", ResourceID: "E1", CreatedAt: "2024-05-01T08:00:00Z"}},
		{"zero sequence", Raw{SequenceID: Int64(0), EventType: "order-started", ResourceID: "E1", CreatedAt: "2024-05-01T08:00:00Z"}},
		{"missing resource", Raw{SequenceID: Int64(1), EventType: "order-started", CreatedAt: "2024-05-01T08:00:00Z"}},
		{"missing type", Raw{SequenceID: Int64(1), ResourceID: "E1", CreatedAt: "2024-05-01T08:00:00Z"}},
		{"missing createdAt", Raw{SequenceID: Int64(1), EventType: "order-started", ResourceID: "E1"}},
		{"bad createdAt", Raw{SequenceID: Int64(1), EventType: "order-started", ResourceID: "E1", CreatedAt: "yesterday"}},
		{"float amount", raw(2, "payment-confirmed", `{"amount": 12.5}`)},
		{"missing amount", raw(2, "payment-confirmed", `{}`)},
		{"payload not object", raw(2, "order-started", `[1,2]`)},
		{"update without date", raw(2, "sub-order-updated", `{"fields": {"quantity": 1}}`)},
		{"update without changes", raw(2, "sub-order-updated", `{"date": "2024-05-01"}`)},
		{"update bad state", raw(2, "sub-order-updated", `{"date": "2024-05-01", "state": "teleported"}`)},
		{"created duplicate dates", raw(2, "order-created", `{"subOrders": [{"date": "2024-05-01"}, {"date": "2024-05-01"}]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalizer{}.Normalize(tt.raw)
			require.Error(t, err)
			assert.True(t, syncerr.Is(err, syncerr.CodeMalformedEvent), "got %v", err)
		})
	}
}

func TestNormalize_UnknownKind(t *testing.T) {
	_, err := Normalizer{}.Normalize(raw(3, "order-teleported", `{}`))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.CodeUnknownEventKind))
	assert.True(t, syncerr.IsSkippable(err))
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"order-started", "order/started", "ORDER_STARTED", " Order-Started "} {
		k, ok := ParseKind(s)
		assert.True(t, ok, s)
		assert.Equal(t, KindOrderStarted, k)
	}
	_, ok := ParseKind("order-shipped")
	assert.False(t, ok)
}

func TestRaw_Fingerprint(t *testing.T) {
	a := raw(1, "order-started", `{}`)
	b := raw(2, "order-started", `{}`)
	assert.Len(t, a.Fingerprint(), 16)
	assert.Equal(t, a.Fingerprint(), raw(1, "order-started", `{}`).Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
