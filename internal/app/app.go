package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/config"
	"github.com/vovakirdan/focusrelay/internal/core"
	"github.com/vovakirdan/focusrelay/internal/feed"
	transporthttp "github.com/vovakirdan/focusrelay/internal/transport/http"
)

// App wires together core, feed and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	nc              *nats.Conn
	feed            *feed.SnapshotFeed
	ingest          *feed.Ingest
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := core.NewHub(core.Options{
		Window:         cfg.AggregationWindow,
		ReaperInterval: cfg.ReaperInterval,
		StaleAfter:     cfg.StaleAfter,
		ReplyErrors:    cfg.ReplyErrors,
		Metrics:        core.NewMetrics(reg),
		Logger:         logger,
	})

	a := &App{
		server:          transporthttp.NewServer(hub, cfg, logger, reg),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}

	if cfg.NATSURL == "" {
		if cfg.SnapshotInterval > 0 {
			logger.Warn().Msg("snapshot_interval set without nats_url; snapshot feed disabled")
		}
		return a, nil
	}

	nc, err := feed.Connect(cfg.NATSURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	a.nc = nc
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("connected to nats")

	if cfg.SnapshotInterval > 0 {
		a.feed = feed.NewSnapshotFeed(feed.Config{
			Interval: cfg.SnapshotInterval,
			Subject:  cfg.NATSSnapshotSubject,
		}, hub, feed.NewNATSPublisher(nc), logger)
	}
	if cfg.NATSIngestSubject != "" {
		a.ingest = feed.NewIngest(nc, cfg.NATSIngestSubject, hub, logger)
	}
	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	if a.ingest != nil {
		if err := a.ingest.Start(); err != nil {
			a.cleanup()
			return fmt.Errorf("start ingest: %w", err)
		}
	}
	if a.feed != nil {
		if err := a.feed.Start(ctx); err != nil {
			a.cleanup()
			return fmt.Errorf("start snapshot feed: %w", err)
		}
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting focusrelay server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup stops the NATS collaborators and closes the connection.
func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.feed != nil {
		if err := a.feed.Stop(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop snapshot feed")
		}
	}
	if a.ingest != nil {
		if err := a.ingest.Stop(); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop nats ingest")
		}
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.log.Warn().Err(err).Msg("failed to drain nats connection")
		} else {
			a.log.Info().Msg("nats connection drained")
		}
	}
}
