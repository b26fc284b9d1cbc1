// Package server exposes the synchronization engine over HTTP: an on-demand
// trigger, order views, checkpoint inspection and reset, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/ordersync/internal/scheduler"
	"github.com/roach88/ordersync/internal/store"
	"github.com/roach88/ordersync/internal/telemetry"
	"github.com/roach88/ordersync/internal/view"
)

// Trigger runs one synchronization batch.
type Trigger interface {
	Run(ctx context.Context) (scheduler.Report, error)
}

// Views serves derived order views.
type Views interface {
	Summary(ctx context.Context, id string) (view.Summary, error)
	History(ctx context.Context, id string) ([]view.Change, error)
	InvalidateEntity(ctx context.Context, id string) error
}

// Checkpoints is the operational surface of the store.
type Checkpoints interface {
	Checkpoint(ctx context.Context, entityID string) (store.Checkpoint, bool, error)
	Reset(ctx context.Context, entityID string, seq int64) error
	Track(ctx context.Context, entityID string) error
}

// Server is the HTTP surface.
type Server struct {
	trigger     Trigger
	views       Views
	checkpoints Checkpoints
	metrics     *telemetry.Metrics
	logger      *slog.Logger

	router *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics serves the registry of m on /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a Server and registers its routes.
func New(trigger Trigger, views Views, checkpoints Checkpoints, opts ...Option) *Server {
	s := &Server{
		trigger:     trigger,
		views:       views,
		checkpoints: checkpoints,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests())

	router.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/sync/trigger", s.handleTrigger)

		v1.GET("/orders/:id/summary", s.handleSummary)
		v1.GET("/orders/:id/history", s.handleHistory)
		v1.POST("/orders/:id/track", s.handleTrack)

		v1.GET("/checkpoints/:id", s.handleGetCheckpoint)
		v1.PUT("/checkpoints/:id", s.handleResetCheckpoint)
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
