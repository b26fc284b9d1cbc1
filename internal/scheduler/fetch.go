package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/ordersync/internal/event"
	"github.com/roach88/ordersync/internal/source"
	"github.com/roach88/ordersync/internal/syncerr"
)

// fetch reads an entity's records after checkpoint with exponential backoff.
// Non-retryable errors (4xx other than 429) and context errors stop at once.
func (s *Scheduler) fetch(ctx context.Context, logger *slog.Logger, id string, checkpoint int64) ([]event.Raw, error) {
	started := time.Now()
	retries := 0

	op := func() ([]event.Raw, error) {
		raws, err := s.source.Fetch(ctx, id, checkpoint)
		if err == nil {
			return raws, nil
		}
		if syncerr.CodeOf(err) == "" {
			err = syncerr.ExternalIO(id, "fetch events", err)
		}
		if ctx.Err() != nil || !source.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff

	raws, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			retries++
			logger.Warn("fetch failed, retrying", "error", err, "wait", wait)
		}),
	)
	s.metrics.Fetched(time.Since(started).Seconds(), retries)
	return raws, err
}
