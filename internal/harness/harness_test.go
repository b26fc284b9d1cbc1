package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, content string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(content))
	require.NoError(t, err)
	return s
}

func TestRun_PendingEditsWriteNoHistory(t *testing.T) {
	s := mustParse(t, `
name: pending_edits
description: "Edits before start update fields in place"
runs:
  - events:
      - { seq: 1, type: order-created, entity: E1, payload: { subOrders: [ { date: "2024-05-02", fields: { quantity: 1 } } ] } }
      - { seq: 2, type: sub-order-updated, entity: E1, payload: { date: "2024-05-02", fields: { quantity: 4 } } }
      - { seq: 3, type: sub-order-updated, entity: E1, payload: { date: "2024-05-04", fields: { quantity: 2 } } }
assertions:
  - { type: state, entity: E1, expect: pending }
  - { type: history_count, entity: E1, count: 0 }
  - { type: changed_after_start, entity: E1, expect: false }
  - { type: field, entity: E1, date: "2024-05-02", field: quantity, expect: 4 }
  - { type: field, entity: E1, date: "2024-05-04", field: quantity, expect: 2 }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	snap, ok := result.Order("E1")
	require.True(t, ok)
	assert.Equal(t, []string{
		`date=2024-05-02 state=pending fields={"quantity":4}`,
		`date=2024-05-04 state=pending fields={"quantity":2}`,
	}, snap.SubOrders)
}

func TestRun_IdempotentReruns(t *testing.T) {
	s := mustParse(t, `
name: reruns
description: "Replaying the same events changes nothing"
setup:
  - { seq: 1, type: order-created, entity: E1, payload: { subOrders: [ { date: "2024-05-02", fields: { quantity: 1 } } ] } }
  - { seq: 2, type: order-started, entity: E1 }
runs:
  - events:
      - { seq: 2, type: order-started, entity: E1 }
      - { seq: 1, type: order-created, entity: E1 }
  - {}
assertions:
  - { type: outcome, entity: E1, run: 1, expect: skipped }
  - { type: outcome, entity: E1, run: 2, expect: skipped }
  - { type: checkpoint, entity: E1, expect: 2 }
  - { type: state, entity: E1, expect: started }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_SetupFailureIsAnError(t *testing.T) {
	s := mustParse(t, `
name: bad_setup
description: "Setup must commit cleanly"
setup:
  - { seq: 1, type: order-started, entity: E1 }
runs: [{}]
assertions:
  - { type: state, entity: E1, expect: none }
`)

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup")
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectations
description: "Every failing assertion is listed"
runs:
  - events:
      - { seq: 1, type: order-created, entity: E1 }
assertions:
  - { type: state, entity: E1, expect: completed }
  - { type: checkpoint, entity: E1, expect: 7 }
  - { type: outcome, entity: E1, expect: error }
  - { type: outcome, entity: E9, expect: applied }
  - { type: state, entity: E1, expect: pending }
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Expected: completed")
	assert.Contains(t, result.Errors[0], "Actual: pending")
	assert.Contains(t, result.Errors[1], "Expected: 7")
	assert.Contains(t, result.Errors[2], "Actual: applied")
	assert.Contains(t, result.Errors[3], "not reported")
}

func TestRun_FixedRunIDIsDeterministic(t *testing.T) {
	content := `
name: determinism
description: "Two executions produce identical snapshots"
run_id: run-fixed
runs:
  - events:
      - { seq: 1, type: order-created, entity: E2, payload: { subOrders: [ { date: "2024-05-02", fields: { quantity: 1 } } ] } }
      - { seq: 1, type: order-created, entity: E1, payload: { subOrders: [ { date: "2024-05-03", fields: { quantity: 2 } } ] } }
assertions:
  - { type: state, entity: E1, expect: pending }
`
	first, err := Run(context.Background(), mustParse(t, content))
	require.NoError(t, err)
	second, err := Run(context.Background(), mustParse(t, content))
	require.NoError(t, err)

	a, err := NewSnapshot("determinism", first).Marshal()
	require.NoError(t, err)
	b, err := NewSnapshot("determinism", second).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	require.Len(t, first.Runs[0], 2)
	assert.Equal(t, "E1", first.Runs[0][0].EntityID)
	assert.Equal(t, "E2", first.Runs[0][1].EntityID)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertOutcome,
		Entity:   "E1",
		Expected: "applied",
		Actual:   "error",
		Runs: [][]RunEntity{{
			{EntityID: "E1", Outcome: "error", ErrorCode: "INVALID_TRANSITION"},
			{EntityID: "E2", Outcome: "applied"},
		}},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: outcome (E1)")
	assert.Contains(t, msg, "Expected: applied")
	assert.Contains(t, msg, "Actual: error")
	assert.Contains(t, msg, "INVALID_TRANSITION")
	assert.NotContains(t, msg, "E2")
}
