package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/cache"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/source"
	"github.com/roach88/ordersync/internal/store"
	"github.com/roach88/ordersync/internal/telemetry"
	"github.com/roach88/ordersync/internal/testutil"
	"github.com/roach88/ordersync/internal/view"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.Store
	source  *source.Memory
	views   *view.Views
	metrics *telemetry.Metrics
	clock   *testutil.FakeClock
	sched   *Scheduler
}

func testConfig() Config {
	return Config{
		Workers:        2,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		RunTimeout:     5 * time.Second,
		Retention:      72 * time.Hour,
	}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock(t0.Add(24 * time.Hour))
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:   st,
		source:  source.NewMemory(),
		metrics: telemetry.NewMetrics(),
		clock:   clock,
	}
	f.views = view.New(st, cache.New(cache.NewMemory(clock.Now)), time.Hour)
	f.sched = New(st, f.source, engine.New(), cfg,
		WithMetrics(f.metrics),
		WithClock(clock.Now),
		WithIDGenerator(testutil.NewFixedRunID("run-1")),
		WithInvalidator(f.views),
	)
	return f
}

func raw(entity string, seq int64, kind string, payload any) event.Raw {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return event.Raw{
		SequenceID: event.Int64(seq),
		EventType:  kind,
		ResourceID: entity,
		CreatedAt:  t0.Add(time.Duration(seq) * time.Minute).Format(time.RFC3339),
		Payload:    data,
	}
}

func created(entity string, seq int64) event.Raw {
	return raw(entity, seq, "order-created", map[string]any{
		"currency": "VND",
		"subOrders": []any{
			map[string]any{"date": "2024-05-02", "fields": map[string]any{"quantity": 2, "unitPrice": 45000}},
			map[string]any{"date": "2024-05-03", "fields": map[string]any{"quantity": 1, "unitPrice": 45000}},
		},
	})
}

func started(entity string, seq int64) event.Raw {
	return raw(entity, seq, "order-started", map[string]any{})
}

func updated(entity string, seq int64, date string, qty int) event.Raw {
	return raw(entity, seq, "sub-order-updated", map[string]any{
		"date":      date,
		"fields":    map[string]any{"quantity": qty},
		"changedBy": "booker-7",
	})
}

func loadOrder(t *testing.T, f *fixture, id string) *order.Order {
	t.Helper()
	o, found, err := f.store.LoadOrder(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found, "order %s not found", id)
	return o
}

func checkpoint(t *testing.T, f *fixture, id string) int64 {
	t.Helper()
	seq, _, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return seq
}

func run(t *testing.T, f *fixture) Report {
	t.Helper()
	report, err := f.sched.Run(context.Background())
	require.NoError(t, err)
	return report
}

func entity(t *testing.T, r Report, id string) EntityReport {
	t.Helper()
	e, ok := r.Entity(id)
	require.True(t, ok, "entity %s missing from report: %s", id, fmt.Sprint(r.Entities))
	return e
}
