package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/source"
	"github.com/roach88/ordersync/internal/syncerr"
)

func TestRun_AppliesDiscoveredEntities(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1), started("E1", 2), updated("E1", 3, "2024-05-02", 5))
	f.source.Add("E2", created("E2", 1))

	report := run(t, f)

	assert.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Entities, 2)
	assert.Equal(t, "E1", report.Entities[0].EntityID)

	e1 := entity(t, report, "E1")
	assert.Equal(t, OutcomeApplied, e1.Outcome)
	require.NotNil(t, e1.NewCheckpoint)
	assert.Equal(t, int64(3), *e1.NewCheckpoint)
	assert.Equal(t, 3, e1.EventsApplied)
	assert.False(t, report.Failed())

	o := loadOrder(t, f, "E1")
	assert.Equal(t, order.StateStarted, o.State)
	assert.True(t, o.HasChangedAfterStart())
	assert.Equal(t, int64(3), checkpoint(t, f, "E1"))
	assert.Equal(t, order.StatePending, loadOrder(t, f, "E2").State)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.EntityOutcomes.WithLabelValues("applied")))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.EventsApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs))
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1), started("E1", 2), updated("E1", 3, "2024-05-02", 5))

	run(t, f)
	before := loadOrder(t, f, "E1")

	report := run(t, f)
	e1 := entity(t, report, "E1")
	assert.Equal(t, OutcomeSkipped, e1.Outcome)
	assert.Equal(t, ReasonNoNewEvents, e1.Reason)
	assert.Nil(t, e1.NewCheckpoint)

	after := loadOrder(t, f, "E1")
	assert.Equal(t, before.SubOrders.History(), after.SubOrders.History())
	assert.Equal(t, int64(3), checkpoint(t, f, "E1"))
}

func TestRun_GapsTolerated(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1), started("E1", 5))
	run(t, f)

	f.source.Add("E1",
		updated("E1", 9, "2024-05-03", 4),
		updated("E1", 6, "2024-05-02", 3),
		updated("E1", 7, "2024-05-02", 4),
	)
	report := run(t, f)

	e1 := entity(t, report, "E1")
	assert.Equal(t, OutcomeApplied, e1.Outcome)
	assert.Equal(t, 3, e1.EventsApplied)
	assert.Equal(t, int64(9), *e1.NewCheckpoint)

	history := loadOrder(t, f, "E1").SubOrders.History()
	require.Len(t, history, 3)
	assert.Equal(t, []int64{6, 7, 9}, []int64{history[0].Seq, history[1].Seq, history[2].Seq})
}

func TestRun_SkipsMalformedAndUnknown(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1",
		created("E1", 1),
		raw("E1", 2, "order-teleported", map[string]any{}),
		event.Raw{SequenceID: event.Int64(3), EventType: "order-started", ResourceID: "E1"},
		started("E1", 4),
	)

	report := run(t, f)
	e1 := entity(t, report, "E1")
	assert.Equal(t, OutcomeApplied, e1.Outcome)
	assert.Equal(t, 2, e1.EventsApplied)
	assert.Equal(t, 2, e1.EventsSkipped)
	assert.Equal(t, int64(4), *e1.NewCheckpoint)
	assert.Equal(t, order.StateStarted, loadOrder(t, f, "E1").State)
}

func TestRun_InvalidTransitionBlocksUntilReset(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1",
		created("E1", 1),
		started("E1", 2),
		raw("E1", 3, "order-completed", map[string]any{}),
		updated("E1", 4, "2024-05-02", 7),
	)

	report := run(t, f)
	e1 := entity(t, report, "E1")
	assert.Equal(t, OutcomeError, e1.Outcome)
	assert.Equal(t, string(syncerr.CodeInvalidTransition), e1.ErrorCode)
	require.NotNil(t, e1.NewCheckpoint, "prefix before the rejected event is committed")
	assert.Equal(t, int64(2), *e1.NewCheckpoint)
	assert.True(t, report.Failed())

	// Nothing to commit on the next run: same error, no checkpoint.
	report = run(t, f)
	e1 = entity(t, report, "E1")
	assert.Equal(t, OutcomeError, e1.Outcome)
	assert.Nil(t, e1.NewCheckpoint)
	assert.Equal(t, int64(2), checkpoint(t, f, "E1"))

	// Operator skips the bad event.
	require.NoError(t, f.store.Reset(context.Background(), "E1", 3))
	report = run(t, f)
	e1 = entity(t, report, "E1")
	assert.Equal(t, OutcomeApplied, e1.Outcome)
	assert.Equal(t, int64(4), *e1.NewCheckpoint)
	assert.Len(t, loadOrder(t, f, "E1").SubOrders.History(), 1)
}

func TestRun_FetchRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1))
	f.source.Fail("E1", errors.New("connection reset"), errors.New("connection reset"))

	report := run(t, f)
	assert.Equal(t, OutcomeApplied, entity(t, report, "E1").Outcome)
	assert.Equal(t, 3, f.source.Fetches("E1"))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.FetchRetries))
}

func TestRun_FetchExhausted(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1))
	f.source.Add("E2", created("E2", 1))
	down := errors.New("connection refused")
	f.source.Fail("E1", down, down, down)

	report := run(t, f)

	e1 := entity(t, report, "E1")
	assert.Equal(t, OutcomeError, e1.Outcome)
	assert.Equal(t, string(syncerr.CodeExternalIO), e1.ErrorCode)
	assert.Contains(t, e1.Error, "connection refused")
	assert.Equal(t, 3, f.source.Fetches("E1"))

	assert.Equal(t, OutcomeApplied, entity(t, report, "E2").Outcome, "failures are isolated per entity")
	assert.Equal(t, int64(0), checkpoint(t, f, "E1"))
}

func TestRun_PermanentFetchErrorNotRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1))
	f.source.Fail("E1", syncerr.ExternalIO("E1", "fetch events", &source.StatusError{StatusCode: 404}))

	report := run(t, f)
	assert.Equal(t, OutcomeError, entity(t, report, "E1").Outcome)
	assert.Equal(t, 1, f.source.Fetches("E1"))
}

type blockingSource struct {
	*source.Memory
	calls atomic.Int32
}

func (b *blockingSource) Fetch(ctx context.Context, _ string, _ int64) ([]event.Raw, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_DeadlineSkipsRemaining(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.RunTimeout = 30 * time.Millisecond
	f := newFixture(t, cfg)

	src := &blockingSource{Memory: source.NewMemory()}
	for _, id := range []string{"E1", "E2", "E3"} {
		src.Add(id, created(id, 1))
	}
	f.sched.source = src

	report := run(t, f)
	require.Len(t, report.Entities, 3)
	for _, e := range report.Entities {
		assert.Equal(t, OutcomeSkipped, e.Outcome, e.EntityID)
		assert.Equal(t, ReasonDeadline, e.Reason, e.EntityID)
	}
	assert.False(t, report.Failed())
	assert.Equal(t, int32(1), src.calls.Load())
}

// racingStore advances the checkpoint behind the scheduler's back right
// before the commit, like a concurrent writer would.
type racingStore struct {
	Store
	advance func(ctx context.Context, id string, seq int64) error
}

func (r racingStore) CommitOrder(ctx context.Context, o *order.Order, expected, newSeq int64, history []order.ChangeItem) error {
	if err := r.advance(ctx, o.ID, newSeq); err != nil {
		return err
	}
	return r.Store.CommitOrder(ctx, o, expected, newSeq, history)
}

func TestRun_LostRaceIsSkipped(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1))
	f.sched.store = racingStore{Store: f.store, advance: f.store.Advance}

	report := run(t, f)
	e1 := entity(t, report, "E1")
	assert.Equal(t, OutcomeSkipped, e1.Outcome)
	assert.Equal(t, ReasonStale, e1.Reason)

	_, found, err := f.store.LoadOrder(context.Background(), "E1")
	require.NoError(t, err)
	assert.False(t, found, "losing writer discards its computation")
}

func TestRun_RetentionUntracksTerminal(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1), raw("E1", 2, "order-cancelled", map[string]any{"reason": "customer"}))

	report := run(t, f)
	assert.Empty(t, report.Untracked, "cancelled 24h ago is within retention")

	f.clock.Advance(72 * time.Hour)
	report = run(t, f)
	assert.Equal(t, []string{"E1"}, report.Untracked)

	report = run(t, f)
	assert.Empty(t, report.Entities, "untracked entities are not visited, even when discovered")
}

func TestRun_InvalidatesViews(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.Add("E1", created("E1", 1))
	run(t, f)

	ctx := context.Background()
	s, err := f.views.Summary(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "pending", s.State)

	f.source.Add("E1", started("E1", 2))
	run(t, f)

	s, err = f.views.Summary(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "started", s.State)
}

func TestRun_TrackedWithoutEvents(t *testing.T) {
	f := newFixture(t, testConfig())
	require.NoError(t, f.store.Track(context.Background(), "E9"))

	report := run(t, f)
	e := entity(t, report, "E9")
	assert.Equal(t, OutcomeSkipped, e.Outcome)
	assert.Equal(t, ReasonNoNewEvents, e.Reason)
}

func TestLoop_RunsUntilCancelled(t *testing.T) {
	f := newFixture(t, testConfig())
	f.sched.ids = UUIDv7Generator{}
	f.source.Add("E1", created("E1", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, f.sched.Loop(ctx, 10*time.Millisecond))

	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.Runs), 2.0)
	assert.Equal(t, int64(1), checkpoint(t, f, "E1"))
}

func TestNew_Defaults(t *testing.T) {
	s := New(nil, source.NewMemory(), engine.New(), Config{})
	assert.Equal(t, DefaultConfig().Workers, s.cfg.Workers)
	assert.Equal(t, DefaultConfig().MaxAttempts, s.cfg.MaxAttempts)
	assert.Equal(t, time.Duration(0), s.cfg.RunTimeout)
}
