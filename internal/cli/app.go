package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/ordersync/internal/cache"
	"github.com/roach88/ordersync/internal/config"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/scheduler"
	"github.com/roach88/ordersync/internal/source"
	"github.com/roach88/ordersync/internal/store"
	"github.com/roach88/ordersync/internal/telemetry"
	"github.com/roach88/ordersync/internal/view"
)

// app holds every long-lived client built from the configuration.
// Clients are constructed here and closed by close, in reverse order.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	metrics   *telemetry.Metrics
	cache     *cache.Cache
	views     *view.Views
	source    source.Source
	scheduler *scheduler.Scheduler

	closers []func() error
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// openApp wires store, cache, views, source and scheduler from cfg.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: telemetry.NewMetrics()}

	st, err := store.Open(cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	backend, err := a.cacheBackend(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.cache = cache.New(backend, cache.WithLogger(logger), cache.WithMetrics(a.metrics))
	a.views = view.New(st, a.cache, cfg.Cache.TTL)

	src, err := newSource(cfg.Source)
	if err != nil {
		a.close()
		return nil, err
	}
	a.source = src

	a.scheduler = scheduler.New(st, src, engine.New(engine.WithLogger(logger)),
		scheduler.Config{
			Workers:        cfg.Scheduler.Workers,
			MaxAttempts:    cfg.Scheduler.MaxAttempts,
			InitialBackoff: cfg.Scheduler.InitialBackoff,
			MaxBackoff:     cfg.Scheduler.MaxBackoff,
			RunTimeout:     cfg.Scheduler.RunTimeout,
			Retention:      cfg.Scheduler.Retention,
		},
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(a.metrics),
		scheduler.WithInvalidator(a.views),
		scheduler.WithNormalizer(event.Normalizer{Location: cfg.Location()}),
	)
	return a, nil
}

func (a *app) cacheBackend(ctx context.Context) (cache.Backend, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		rc := a.cfg.Cache.Redis
		client, err := cache.DialRedis(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", rc.Addr, err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info("cache backend ready", "backend", "redis", "addr", rc.Addr)
		return cache.NewRedis(client, rc.Prefix), nil
	default:
		return cache.NewMemory(nil), nil
	}
}

func newSource(cfg config.SourceConfig) (source.Source, error) {
	switch cfg.Kind {
	case config.SourceHTTP:
		src, err := source.NewHTTP(cfg.BaseURL, cfg.Token, source.WithPageSize(cfg.PageSize))
		if err != nil {
			return nil, fmt.Errorf("http source: %w", err)
		}
		return src, nil
	case config.SourceMemory:
		return source.NewMemory(), nil
	default:
		return source.NewDir(cfg.Dir), nil
	}
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp loads the config, opens the app, runs fn and closes the app.
func (o *RootOptions) withApp(ctx context.Context, cfg *config.Config, fn func(*app) error) error {
	a, err := openApp(ctx, cfg, o.logger())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer func() {
		if err := a.close(); err != nil {
			o.logger().Error("error closing clients", "error", err)
		}
	}()
	return fn(a)
}
