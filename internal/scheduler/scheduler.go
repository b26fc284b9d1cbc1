// Package scheduler runs synchronization batches.
//
// A run visits every tracked entity in a bounded worker pool. Each entity is
// processed sequentially: read checkpoint and order, fetch events after the
// checkpoint, normalize, apply, commit. A failure in one entity never aborts
// the others; every entity ends with exactly one outcome in the report.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/order"
	"github.com/roach88/ordersync/internal/source"
	"github.com/roach88/ordersync/internal/syncerr"
	"github.com/roach88/ordersync/internal/telemetry"
)

// Store is the durable state the scheduler reads and commits.
type Store interface {
	Get(ctx context.Context, entityID string) (int64, bool, error)
	LoadOrder(ctx context.Context, id string) (*order.Order, bool, error)
	CommitOrder(ctx context.Context, o *order.Order, expected, newSeq int64, history []order.ChangeItem) error
	Tracked(ctx context.Context) ([]string, error)
	TrackDiscovered(ctx context.Context, entityIDs []string) (int, error)
	UntrackTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Invalidator drops cached views of an entity after a commit.
type Invalidator interface {
	InvalidateEntity(ctx context.Context, entityID string) error
}

// Config tunes a Scheduler.
type Config struct {
	// Workers bounds the number of entities processed in parallel.
	Workers int

	// MaxAttempts bounds fetch attempts per entity, including the first.
	MaxAttempts int

	// InitialBackoff and MaxBackoff shape the exponential retry delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RunTimeout stops scheduling new entities. Zero means no deadline.
	RunTimeout time.Duration

	// Retention untracks terminal orders older than this. Zero disables GC.
	Retention time.Duration
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		RunTimeout:     2 * time.Minute,
		Retention:      72 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// Scheduler runs synchronization batches. Safe for concurrent use;
// overlapping runs are resolved by the store's checkpoint compare.
type Scheduler struct {
	store      Store
	source     source.Source
	engine     *engine.Engine
	normalizer event.Normalizer
	views      Invalidator

	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	ids     IDGenerator
	now     func() time.Time
	tracer  trace.Tracer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithMetrics records run and entity metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithIDGenerator sets the run id generator. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Scheduler) {
		s.ids = g
	}
}

// WithClock sets the clock for report timestamps and retention.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithInvalidator sets the cache invalidation hook run after each commit.
func WithInvalidator(v Invalidator) Option {
	return func(s *Scheduler) {
		s.views = v
	}
}

// WithNormalizer sets the event normalizer (time zone for date keys).
func WithNormalizer(n event.Normalizer) Option {
	return func(s *Scheduler) {
		s.normalizer = n
	}
}

// New creates a Scheduler.
func New(st Store, src source.Source, eng *engine.Engine, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  st,
		source: src,
		engine: eng,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
		tracer: telemetry.Tracer("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one batch over every tracked entity.
// The error is non-nil only when the entity list cannot be read; per-entity
// failures are reported in the Report.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	report := Report{
		RunID:     s.ids.Generate(),
		StartedAt: s.now(),
		Entities:  []EntityReport{},
	}
	started := time.Now()

	ctx, span := s.tracer.Start(ctx, "ordersync.run",
		trace.WithAttributes(attribute.String("run.id", report.RunID)))
	defer span.End()

	logger := s.logger.With("run", report.RunID)

	ids, err := s.entities(ctx, logger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	results := make([]EntityReport, len(ids))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, id := range ids {
		if runCtx.Err() != nil {
			results[i] = skipped(id, ReasonDeadline)
			continue
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				results[i] = skipped(id, ReasonDeadline)
				return nil
			}
			results[i] = s.processEntity(ctx, runCtx, logger, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		s.metrics.EntityFinished(string(r.Outcome), r.EventsApplied, r.EventsSkipped)
	}
	sortEntities(results)
	report.Entities = results

	if s.cfg.Retention > 0 {
		removed, err := s.store.UntrackTerminalBefore(ctx, s.now().Add(-s.cfg.Retention))
		if err != nil {
			logger.Warn("retention gc failed", "error", err)
		}
		report.Untracked = removed
	}

	report.FinishedAt = s.now()
	s.metrics.RunFinished(time.Since(started).Seconds())
	span.SetAttributes(
		attribute.Int("run.entities", len(results)),
		attribute.Int("run.errors", report.Count(OutcomeError)),
	)

	logger.Info("run finished",
		"entities", len(results),
		"applied", report.Count(OutcomeApplied),
		"skipped", report.Count(OutcomeSkipped),
		"errors", report.Count(OutcomeError),
	)
	return report, nil
}

// entities returns tracked ∪ discovered ids, sorted. Discovery failures are
// logged and the tracked set is used alone.
func (s *Scheduler) entities(ctx context.Context, logger *slog.Logger) ([]string, error) {
	if d, ok := s.source.(source.Discoverer); ok {
		discovered, err := d.Discover(ctx)
		if err != nil {
			logger.Warn("entity discovery failed", "error", err)
		} else if n, err := s.store.TrackDiscovered(ctx, discovered); err != nil {
			logger.Warn("tracking discovered entities failed", "error", err)
		} else if n > 0 {
			logger.Info("tracking new entities", "count", n)
		}
	}

	ids, err := s.store.Tracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked entities: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// processEntity runs one entity. fetchCtx carries the run deadline; commits
// use ctx so an in-flight commit is not cut off by the deadline.
func (s *Scheduler) processEntity(ctx, fetchCtx context.Context, logger *slog.Logger, id string) EntityReport {
	fetchCtx, span := s.tracer.Start(fetchCtx, "ordersync.entity",
		trace.WithAttributes(attribute.String("entity.id", id)))
	defer span.End()

	logger = logger.With("entity", id)
	rep := s.syncEntity(ctx, fetchCtx, logger, id)

	span.SetAttributes(
		attribute.String("entity.outcome", string(rep.Outcome)),
		attribute.Int("entity.events_applied", rep.EventsApplied),
	)
	if rep.Outcome == OutcomeError {
		span.SetStatus(codes.Error, rep.Error)
		logger.Error("entity failed", "code", rep.ErrorCode, "error", rep.Error)
	}
	return rep
}

func (s *Scheduler) syncEntity(ctx, fetchCtx context.Context, logger *slog.Logger, id string) EntityReport {
	checkpoint, _, err := s.store.Get(fetchCtx, id)
	if err != nil {
		return s.failure(fetchCtx, id, syncerr.ExternalIO(id, "read checkpoint", err))
	}
	current, _, err := s.store.LoadOrder(fetchCtx, id)
	if err != nil {
		return s.failure(fetchCtx, id, syncerr.ExternalIO(id, "load order", err))
	}

	raws, err := s.fetch(fetchCtx, logger, id, checkpoint)
	if err != nil {
		return s.failure(fetchCtx, id, err)
	}

	batch := s.normalizer.NormalizeAll(id, raws)
	for _, r := range batch.Rejected {
		seq, _ := r.Raw.Seq()
		if seq > 0 && seq <= checkpoint {
			continue
		}
		logger.Warn("skipping event",
			"seq", seq,
			"fingerprint", r.Raw.Fingerprint(),
			"code", syncerr.CodeOf(r.Err),
			"error", r.Err,
		)
	}

	res := s.engine.ApplyBatch(current, checkpoint, batch)
	if !res.Advanced(checkpoint) {
		if res.Rejected != nil {
			return s.failure(fetchCtx, id, res.Rejected)
		}
		return skipped(id, ReasonNoNewEvents)
	}

	history := res.Order.HistorySince(current.LastSeq)
	if err := s.store.CommitOrder(ctx, res.Order, checkpoint, res.Checkpoint, history); err != nil {
		if syncerr.IsStale(err) {
			logger.Info("lost checkpoint race, discarding batch", "error", err)
			return skipped(id, ReasonStale)
		}
		return s.failure(fetchCtx, id, syncerr.ExternalIO(id, "commit order", err))
	}

	if s.views != nil {
		if err := s.views.InvalidateEntity(ctx, id); err != nil {
			logger.Warn("cache invalidation failed", "error", err)
		}
	}

	newCP := res.Checkpoint
	rep := EntityReport{
		EntityID:      id,
		Outcome:       OutcomeApplied,
		NewCheckpoint: &newCP,
		EventsApplied: res.Applied,
		EventsSkipped: res.Skipped,
	}
	if res.Rejected != nil {
		rep.Outcome = OutcomeError
		rep.ErrorCode = string(syncerr.CodeOf(res.Rejected))
		rep.Error = res.Rejected.Error()
	}

	logger.Debug("entity synced",
		"checkpoint", newCP,
		"applied", res.Applied,
		"skipped", res.Skipped,
		"state", res.Order.State,
	)
	return rep
}

// failure turns an error into an entity report. A failure caused by the run
// deadline is a skip, not an error.
func (s *Scheduler) failure(ctx context.Context, id string, err error) EntityReport {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return skipped(id, ReasonDeadline)
	}
	code := syncerr.CodeOf(err)
	if code == "" {
		code = syncerr.CodeExternalIO
	}
	return EntityReport{
		EntityID:  id,
		Outcome:   OutcomeError,
		ErrorCode: string(code),
		Error:     err.Error(),
	}
}

func skipped(id, reason string) EntityReport {
	return EntityReport{EntityID: id, Outcome: OutcomeSkipped, Reason: reason}
}

// Loop runs immediately and then every interval until ctx is cancelled.
func (s *Scheduler) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error("run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
