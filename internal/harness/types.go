package harness

import (
	"github.com/roach88/ordersync/internal/order"
)

// RunEntity is the outcome of one entity in one run.
type RunEntity struct {
	EntityID   string `json:"entityId"`
	Outcome    string `json:"outcome"`
	Checkpoint *int64 `json:"checkpoint,omitempty"`
	Applied    int    `json:"applied"`
	Skipped    int    `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
	ErrorCode  string `json:"errorCode,omitempty"`
}

// OrderSnapshot is the persisted state of one order after the last run.
type OrderSnapshot struct {
	EntityID          string   `json:"entityId"`
	State             string   `json:"state"`
	Checkpoint        int64    `json:"checkpoint"`
	ChangedAfterStart bool     `json:"changedAfterStart"`
	SubOrders         []string `json:"subOrders"`
	History           []string `json:"history"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool `json:"pass"`

	// Runs holds the entity outcomes of each run, sorted by entity id.
	Runs [][]RunEntity `json:"runs"`

	// Orders holds the final state of every entity the scenario touched.
	Orders []OrderSnapshot `json:"orders"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	orders map[string]*order.Order
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   [][]RunEntity{},
		Orders: []OrderSnapshot{},
		Errors: []string{},
		orders: make(map[string]*order.Order),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Entity returns the outcome of entityID in run (1-based; 0 is the last run).
func (r *Result) Entity(run int, entityID string) (RunEntity, bool) {
	if len(r.Runs) == 0 {
		return RunEntity{}, false
	}
	idx := len(r.Runs) - 1
	if run > 0 {
		idx = run - 1
	}
	if idx >= len(r.Runs) {
		return RunEntity{}, false
	}
	for _, e := range r.Runs[idx] {
		if e.EntityID == entityID {
			return e, true
		}
	}
	return RunEntity{}, false
}

// Order returns the final snapshot of entityID.
func (r *Result) Order(entityID string) (OrderSnapshot, bool) {
	for _, o := range r.Orders {
		if o.EntityID == entityID {
			return o, true
		}
	}
	return OrderSnapshot{}, false
}
