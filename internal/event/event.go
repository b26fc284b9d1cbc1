package event

import (
	"time"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/value"
)

// Event is a canonical lifecycle event.
type Event struct {
	SequenceID int64
	EntityID   string
	Kind       Kind
	Payload    Payload
	OccurredAt time.Time
	Actor      string
}

// Payload is the per-kind schema. The set of implementations is closed.
type Payload interface {
	Kind() Kind
}

// SubOrderSpec describes one delivery date of a newly created order.
type SubOrderSpec struct {
	DateKey order.DateKey
	Fields  value.Object
}

// OrderCreated starts tracking a new order in pending.
type OrderCreated struct {
	Currency  string
	SubOrders []SubOrderSpec
}

func (OrderCreated) Kind() Kind { return KindOrderCreated }

// OrderStarted moves a pending order to started.
type OrderStarted struct{}

func (OrderStarted) Kind() Kind { return KindOrderStarted }

// SubOrderUpdated changes fields (and optionally the state) of one date.
// A Null field value removes the field.
type SubOrderUpdated struct {
	DateKey   order.DateKey
	Fields    value.Object
	State     order.SubOrderState
	ChangedBy string
}

func (SubOrderUpdated) Kind() Kind { return KindSubOrderUpdated }

// PaymentConfirmed records a captured payment.
type PaymentConfirmed struct {
	Amount   order.Money
	Currency string
}

func (PaymentConfirmed) Kind() Kind { return KindPaymentConfirmed }

// OrderCompleted closes an in-progress order.
type OrderCompleted struct{}

func (OrderCompleted) Kind() Kind { return KindOrderCompleted }

// OrderCancelled cancels a live order.
type OrderCancelled struct {
	Reason string
}

func (OrderCancelled) Kind() Kind { return KindOrderCancelled }
