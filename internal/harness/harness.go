package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/scheduler"
	"github.com/roach88/ordersync/internal/source"
	"github.com/roach88/ordersync/internal/store"
	"github.com/roach88/ordersync/internal/testutil"
	"github.com/roach88/ordersync/internal/value"
)

// Harness executes one scenario against a private store.
type Harness struct {
	store  *store.Store
	source *source.Memory
	sched  *scheduler.Scheduler
	clock  *testutil.FakeClock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database in a temporary directory,
// with a fixed clock and run id so results are reproducible.
//
// Execution flow:
//  1. Publish setup events and run once (must not fail)
//  2. For each run: reset checkpoint, publish events, trigger a batch
//  3. Snapshot every touched order
//  4. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "ordersync-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFakeClock(Epoch)

	st, err := store.Open(filepath.Join(dir, "scenario.db"),
		store.WithClock(clock.Now),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	defer st.Close()

	loc := time.UTC
	if scenario.Timezone != "" {
		if loc, err = time.LoadLocation(scenario.Timezone); err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}

	src := source.NewMemory()
	h := &Harness{
		store:  st,
		source: src,
		clock:  clock,
		logger: logger,
		sched: scheduler.New(st, src, engine.New(engine.WithLogger(logger)),
			scheduler.Config{Workers: 1, MaxAttempts: 1},
			scheduler.WithLogger(logger),
			scheduler.WithClock(clock.Now),
			scheduler.WithIDGenerator(testutil.NewFixedRunID(scenario.RunID)),
			scheduler.WithNormalizer(event.Normalizer{Location: loc}),
		),
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	for i, run := range scenario.Runs {
		entities, err := h.executeRun(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		result.Runs = append(result.Runs, entities)
	}

	for _, id := range touchedEntities(scenario) {
		if err := h.snapshot(ctx, id, result); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []EventStep) error {
	if len(setup) == 0 {
		return nil
	}
	h.publish(setup)
	report, err := h.sched.Run(ctx)
	if err != nil {
		return err
	}
	for _, e := range report.Entities {
		if e.Outcome == scheduler.OutcomeError {
			return fmt.Errorf("entity %s: %s", e.EntityID, e.Error)
		}
	}
	h.logger.Info("setup committed", "entities", len(report.Entities))
	return nil
}

func (h *Harness) executeRun(ctx context.Context, run RunStep) ([]RunEntity, error) {
	h.clock.Advance(time.Minute)

	if run.Reset != nil {
		if err := h.store.Reset(ctx, run.Reset.Entity, run.Reset.Seq); err != nil {
			return nil, err
		}
	}
	h.publish(run.Events)

	report, err := h.sched.Run(ctx)
	if err != nil {
		return nil, err
	}

	entities := make([]RunEntity, 0, len(report.Entities))
	for _, e := range report.Entities {
		entities = append(entities, RunEntity{
			EntityID:   e.EntityID,
			Outcome:    string(e.Outcome),
			Checkpoint: e.NewCheckpoint,
			Applied:    e.EventsApplied,
			Skipped:    e.EventsSkipped,
			Reason:     e.Reason,
			ErrorCode:  e.ErrorCode,
		})
	}
	return entities, nil
}

func (h *Harness) publish(events []EventStep) {
	for _, ev := range events {
		h.source.Add(ev.Entity, rawRecord(ev))
	}
}

// rawRecord builds the wire record of ev. Payload values the JSON encoder
// cannot represent leave the payload empty.
func rawRecord(ev EventStep) event.Raw {
	at := ev.At
	if at == "" {
		var seq int64
		if ev.Seq != nil {
			seq = *ev.Seq
		}
		at = Epoch.Add(time.Duration(seq) * time.Minute).Format(time.RFC3339)
	}

	var payload json.RawMessage
	if ev.Payload != nil {
		if data, err := json.Marshal(ev.Payload); err == nil {
			payload = data
		}
	}

	return event.Raw{
		SequenceID: ev.Seq,
		EventType:  ev.Type,
		ResourceID: ev.Entity,
		CreatedAt:  at,
		Actor:      ev.Actor,
		Payload:    payload,
	}
}

func (h *Harness) snapshot(ctx context.Context, id string, result *Result) error {
	o, _, err := h.store.LoadOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	checkpoint, _, err := h.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read checkpoint %s: %w", id, err)
	}

	snap := OrderSnapshot{
		EntityID:          id,
		State:             o.State.String(),
		Checkpoint:        checkpoint,
		ChangedAfterStart: o.HasChangedAfterStart(),
		SubOrders:         []string{},
		History:           []string{},
	}
	for _, so := range o.SubOrders.All() {
		snap.SubOrders = append(snap.SubOrders, fmt.Sprintf("date=%s state=%s fields=%s",
			so.DateKey, so.State, canonical(so.Fields)))
	}
	for _, item := range o.SubOrders.History() {
		snap.History = append(snap.History, formatChange(item))
	}

	result.Orders = append(result.Orders, snap)
	result.orders[id] = o
	return nil
}

func formatChange(item order.ChangeItem) string {
	return fmt.Sprintf("seq=%d date=%s field=%s from=%s to=%s by=%s",
		item.Seq, item.DateKey, item.FieldName,
		canonical(item.Previous), canonical(item.New), item.ChangedBy)
}

func canonical(v value.Value) string {
	data, err := value.Canonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// touchedEntities returns every entity the scenario mentions, sorted.
func touchedEntities(s *Scenario) []string {
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" {
			seen[id] = true
		}
	}
	for _, ev := range s.Setup {
		add(ev.Entity)
	}
	for _, run := range s.Runs {
		if run.Reset != nil {
			add(run.Reset.Entity)
		}
		for _, ev := range run.Events {
			add(ev.Entity)
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
