package order

import "fmt"

// State is the order lifecycle state.
type State string

const (
	// StateNone is the state of an order no event has created yet.
	StateNone       State = ""
	StatePending    State = "pending"
	StateStarted    State = "started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Started reports whether the order is started or later. Cancelled is not
// included: sub-order edits are rejected once an order is cancelled.
func (s State) Started() bool {
	switch s {
	case StateStarted, StateInProgress, StateCompleted:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateNone, StatePending, StateStarted, StateInProgress, StateCompleted, StateCancelled:
		return true
	}
	return false
}

// ParseState validates a persisted state string.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return StateNone, fmt.Errorf("unknown order state %q", s)
	}
	return st, nil
}

func (s State) String() string {
	if s == StateNone {
		return "none"
	}
	return string(s)
}

// SubOrderState is the lifecycle state of one delivery date.
type SubOrderState string

const (
	SubOrderPending   SubOrderState = "pending"
	SubOrderActive    SubOrderState = "active"
	SubOrderCancelled SubOrderState = "cancelled"
	SubOrderDelivered SubOrderState = "delivered"
)

// Valid reports whether s is a known sub-order state.
func (s SubOrderState) Valid() bool {
	switch s {
	case SubOrderPending, SubOrderActive, SubOrderCancelled, SubOrderDelivered:
		return true
	}
	return false
}
