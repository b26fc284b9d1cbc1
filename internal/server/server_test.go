package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ordersync/internal/cache"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/scheduler"
	"github.com/roach88/ordersync/internal/source"
	"github.com/roach88/ordersync/internal/store"
	"github.com/roach88/ordersync/internal/telemetry"
	"github.com/roach88/ordersync/internal/testutil"
	"github.com/roach88/ordersync/internal/view"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store  *store.Store
	source *source.Memory
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock(t0)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	metrics := telemetry.NewMetrics()
	views := view.New(st, cache.New(cache.NewMemory(clock.Now), cache.WithMetrics(metrics)), time.Minute)
	src := source.NewMemory()
	sched := scheduler.New(st, src, engine.New(), scheduler.Config{},
		scheduler.WithClock(clock.Now),
		scheduler.WithIDGenerator(testutil.NewFixedRunID("run-http")),
		scheduler.WithInvalidator(views),
		scheduler.WithMetrics(metrics),
	)

	return &fixture{
		store:  st,
		source: src,
		server: New(sched, views, st, WithMetrics(metrics)),
	}
}

func raw(entity string, seq int64, kind string, payload string) event.Raw {
	return event.Raw{
		SequenceID: event.Int64(seq),
		EventType:  kind,
		ResourceID: entity,
		CreatedAt:  t0.Add(time.Duration(seq) * time.Minute).Format(time.RFC3339),
		Payload:    json.RawMessage(payload),
	}
}

func (f *fixture) seedOrder(entity string) {
	f.source.Add(entity,
		raw(entity, 1, "order-created", `{"currency":"VND","subOrders":[{"date":"2024-05-02","fields":{"quantity":2,"unitPrice":45000}}]}`),
		raw(entity, 2, "order-started", `{}`),
		raw(entity, 3, "sub-order-updated", `{"date":"2024-05-02","fields":{"quantity":3},"changedBy":"booker-7"}`),
	)
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestTriggerAndViews(t *testing.T) {
	f := newFixture(t)
	f.seedOrder("E1")

	w := f.do(t, http.MethodPost, "/v1/sync/trigger", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[scheduler.Report](t, w)
	assert.Equal(t, "run-http", report.RunID)
	require.Len(t, report.Entities, 1)
	assert.Equal(t, scheduler.OutcomeApplied, report.Entities[0].Outcome)
	require.NotNil(t, report.Entities[0].NewCheckpoint)
	assert.Equal(t, int64(3), *report.Entities[0].NewCheckpoint)

	w = f.do(t, http.MethodGet, "/v1/orders/E1/summary", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[view.Summary](t, w)
	assert.Equal(t, "E1", summary.ID)
	assert.Equal(t, int64(3), summary.LastSequenceID)
	assert.True(t, summary.ChangedAfterStart)

	w = f.do(t, http.MethodGet, "/v1/orders/E1/history", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	history := decode[[]view.Change](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, "quantity", history[0].FieldName)
	assert.JSONEq(t, `2`, string(history[0].PreviousValue))
	assert.JSONEq(t, `3`, string(history[0].NewValue))
	assert.Equal(t, "booker-7", history[0].ChangedBy)
}

func TestUnknownOrderIs404(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/v1/orders/nope/summary", "/v1/orders/nope/history"} {
		w := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestTrack(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/orders/E9/track", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entityId":"E9","tracked":true}`, w.Body.String())

	ids, err := f.store.Tracked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"E9"}, ids)
}

func TestCheckpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.do(t, http.MethodGet, "/v1/checkpoints/E1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, f.store.Advance(ctx, "E1", 9))

	w = f.do(t, http.MethodGet, "/v1/checkpoints/E1", "")
	require.Equal(t, http.StatusOK, w.Code)
	cp := decode[store.Checkpoint](t, w)
	assert.Equal(t, "E1", cp.EntityID)
	assert.Equal(t, int64(9), cp.LastSeq)

	w = f.do(t, http.MethodPut, "/v1/checkpoints/E1", `{"lastSequenceId": 4}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cp = decode[store.Checkpoint](t, w)
	assert.Equal(t, int64(4), cp.LastSeq)

	seq, _, err := f.store.Get(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
}

func TestResetCheckpointRejectsBadBodies(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{}`, `not json`, `{"lastSequenceId": -1}`, `{"lastSequenceId": "7"}`} {
		w := f.do(t, http.MethodPut, "/v1/checkpoints/E1", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedOrder("E1")
	f.do(t, http.MethodPost, "/v1/sync/trigger", "")

	w := f.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "ordersync_trigger_runs_total")
	assert.Contains(t, body, "go_goroutines")
}

type failingTrigger struct{}

func (failingTrigger) Run(context.Context) (scheduler.Report, error) {
	return scheduler.Report{}, errors.New("database is locked")
}

func TestTriggerFailureIs500(t *testing.T) {
	f := newFixture(t)
	srv := New(failingTrigger{}, nil, f.store)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/trigger", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "database is locked")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.server.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
