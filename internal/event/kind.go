package event

import "strings"

// Kind discriminates canonical events.
type Kind string

const (
	KindOrderCreated     Kind = "order-created"
	KindOrderStarted     Kind = "order-started"
	KindSubOrderUpdated  Kind = "sub-order-updated"
	KindPaymentConfirmed Kind = "payment-confirmed"
	KindOrderCompleted   Kind = "order-completed"
	KindOrderCancelled   Kind = "order-cancelled"
)

var kinds = map[Kind]struct{}{
	KindOrderCreated:     {},
	KindOrderStarted:     {},
	KindSubOrderUpdated:  {},
	KindPaymentConfirmed: {},
	KindOrderCompleted:   {},
	KindOrderCancelled:   {},
}

// ParseKind maps a raw event type onto a Kind. Matching is case-insensitive
// and treats '/', '_' and '-' alike, so "order/started", "ORDER_STARTED" and
// "order-started" are the same kind.
func ParseKind(eventType string) (Kind, bool) {
	s := strings.ToLower(strings.TrimSpace(eventType))
	s = strings.NewReplacer("/", "-", "_", "-").Replace(s)
	k := Kind(s)
	_, ok := kinds[k]
	return k, ok
}
