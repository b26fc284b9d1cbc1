package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string
	Entity   string
	Expected string
	Actual   string
	Runs     [][]RunEntity
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (%s)\n", e.Type, e.Entity)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Runs) > 0 {
		fmt.Fprintf(&buf, "\nRuns:\n")
		for i, run := range e.Runs {
			for _, ent := range run {
				if ent.EntityID == e.Entity {
					fmt.Fprintf(&buf, "  [%d] %s applied=%d skipped=%d %s%s\n",
						i+1, ent.Outcome, ent.Applied, ent.Skipped, ent.Reason, ent.ErrorCode)
				}
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Entity: a.Entity, Expected: expected, Actual: actual, Runs: result.Runs}
	}

	switch a.Type {
	case AssertOutcome, AssertErrorCode:
		ent, ok := result.Entity(a.Run, a.Entity)
		if !ok {
			return fail(fmt.Sprintf("%s reported in run %s", a.Entity, runLabel(a.Run)), "not reported")
		}
		actual := ent.Outcome
		if a.Type == AssertErrorCode {
			actual = ent.ErrorCode
		}
		if want := fmt.Sprint(a.Expect); actual != want {
			return fail(want, actual)
		}

	case AssertCheckpoint:
		snap, ok := result.Order(a.Entity)
		if !ok {
			return fail("known entity", "not touched by scenario")
		}
		want, err := toInt64(a.Expect)
		if err != nil {
			return err
		}
		if snap.Checkpoint != want {
			return fail(strconv.FormatInt(want, 10), strconv.FormatInt(snap.Checkpoint, 10))
		}

	case AssertState:
		snap, ok := result.Order(a.Entity)
		if !ok {
			return fail("known entity", "not touched by scenario")
		}
		if want := fmt.Sprint(a.Expect); snap.State != want {
			return fail(want, snap.State)
		}

	case AssertChangedAfterStart:
		snap, ok := result.Order(a.Entity)
		if !ok {
			return fail("known entity", "not touched by scenario")
		}
		want, ok := a.Expect.(bool)
		if !ok {
			return fmt.Errorf("changed_after_start expects a boolean, got %T", a.Expect)
		}
		if snap.ChangedAfterStart != want {
			return fail(strconv.FormatBool(want), strconv.FormatBool(snap.ChangedAfterStart))
		}

	case AssertHistoryCount:
		snap, ok := result.Order(a.Entity)
		if !ok {
			return fail("known entity", "not touched by scenario")
		}
		if len(snap.History) != *a.Count {
			return fail(fmt.Sprintf("%d history items", *a.Count), fmt.Sprintf("%d: %v", len(snap.History), snap.History))
		}

	case AssertField:
		return assertField(result, a, fail)

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertField(result *Result, a Assertion, fail func(expected, actual string) error) error {
	o, ok := result.orders[a.Entity]
	if !ok {
		return fail("known entity", "not touched by scenario")
	}
	so, ok := o.SubOrders.Get(order.DateKey(a.Date))
	if !ok {
		return fail("sub-order "+a.Date, "no such sub-order")
	}

	want, err := value.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("field expect: %w", err)
	}
	got := so.Fields[a.Field]
	if !value.Equal(want, got) {
		return fail(canonical(want), canonical(got))
	}
	return nil
}

func toInt64(v any) (int64, error) {
	n, err := value.FromAny(v)
	if err != nil {
		return 0, fmt.Errorf("expected an integer: %w", err)
	}
	i, ok := n.(value.Int)
	if !ok {
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
	return int64(i), nil
}

func runLabel(run int) string {
	if run == 0 {
		return "last"
	}
	return strconv.Itoa(run)
}
