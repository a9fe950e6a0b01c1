// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/livewatch/internal/api"
	"github.com/ManuGH/livewatch/internal/cache"
	"github.com/ManuGH/livewatch/internal/config"
	"github.com/ManuGH/livewatch/internal/engine/hlsengine"
	"github.com/ManuGH/livewatch/internal/health"
	"github.com/ManuGH/livewatch/internal/history"
	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/persistence/sqlite"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/ManuGH/livewatch/internal/sink"
	"github.com/ManuGH/livewatch/internal/supervisor"
	"github.com/ManuGH/livewatch/internal/telemetry"
	"github.com/ManuGH/livewatch/internal/version"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// app owns every long-lived component of the daemon.
type app struct {
	cfg     config.AppConfig
	holder  *config.Holder
	tracing *telemetry.Provider
	store   *history.Store
	writer  *history.Writer
	cache   cache.Cache
	sup     *supervisor.Supervisor
	hub     *api.Hub
	server  *http.Server
	logger  zerolog.Logger
}

func newApp(ctx context.Context, cfg config.AppConfig, loader *config.Loader) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		holder: config.NewHolder(cfg, loader),
		logger: log.WithComponent("daemon"),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.tracing, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if cfg.History.Path != "" {
		if a.store, err = openHistory(ctx, cfg.History.Path, cfg.History.Retention, a.logger); err != nil {
			return nil, err
		}
		a.writer = history.NewWriter(a.store, 512)
	}

	if a.cache, err = openCache(ctx, cfg.Cache); err != nil {
		return nil, err
	}
	views := cache.NewViewStore(a.cache, cfg.Cache.TTL, log.WithComponent("cache"))

	if cfg.Snapshots.Dir != "" {
		if err = sink.EnsureSnapshotDir(cfg.Snapshots.Dir); err != nil {
			return nil, err
		}
	}

	provider := hlsengine.NewProvider(cfg.Engine.Library.Enabled,
		hlsengine.WithHTTPClient(&http.Client{
			Timeout:   cfg.Engine.Library.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
		hlsengine.WithPollInterval(cfg.Engine.Library.PollInterval),
	)
	clock := clockwork.NewRealClock()
	selector := playback.NewSelector(provider, clock)

	a.sup = supervisor.New(selector, func(id string) supervisor.Sink {
		return sink.NewMonitor(sink.Config{
			ID:          id,
			FFmpegBin:   cfg.Engine.Native.FFmpegBin,
			SnapshotDir: cfg.Snapshots.Dir,
		})
	}, supervisor.WithClock(clock))

	a.hub = api.NewHub(a.sup.Views)
	a.sup.OnView(views.Put)
	a.sup.OnView(a.hub.Broadcast)
	a.sup.OnRemoved(views.Delete)
	if a.writer != nil {
		rec := supervisor.NewHistoryRecorder(a.writer)
		a.sup.OnView(rec.Record)
		a.sup.OnRemoved(rec.Forget)
	}
	a.sup.OnRemoved(a.hub.Removed)

	hm := health.NewManager(version.Version)
	deps := api.Deps{
		Streams:      a.sup,
		Health:       hm,
		Hub:          a.hub,
		RateLimitRPS: cfg.RateLimit.RPS,
	}
	if a.store != nil {
		hm.RegisterChecker(health.NewPingChecker("history", a.store.Ping))
		deps.History = a.store
	}
	hm.RegisterChecker(health.NewOptionalPingChecker("cache", a.cache.HealthCheck))
	hm.RegisterChecker(health.NewStreamsChecker(a.sup.Views))
	if cfg.Telemetry.Enabled {
		deps.TracingService = cfg.Telemetry.ServiceName
	}

	a.server = &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           api.NewServer(deps).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return a, nil
}

// openHistory verifies an existing database before opening it.
func openHistory(ctx context.Context, path string, retention int, logger zerolog.Logger) (*history.Store, error) {
	if _, err := os.Stat(path); err == nil {
		if err := sqlite.Verify(ctx, path, sqlite.QuickCheck); err != nil {
			return nil, fmt.Errorf("verify history database: %w", err)
		}
		logger.Debug().Str(log.FieldPath, path).Msg("history database integrity ok")
	}
	store, err := history.Open(ctx, path, retention)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(time.Minute), nil
	}
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr}, log.WithComponent("cache"))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Run serves until ctx is done and then shuts every component down.
func (a *app) Run(ctx context.Context) error {
	defer a.close()

	ln, err := a.listen(ctx)
	if err != nil {
		a.sup.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// The writer outlives the supervisor so the final views are persisted.
	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWriter()
	if a.writer != nil {
		g.Go(func() error { return a.writer.Run(writerCtx) })
	}
	g.Go(func() error {
		defer stopWriter()
		return a.sup.Run(gctx)
	})

	updates := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(updates)
	if err := a.holder.StartWatcher(gctx); err != nil {
		a.logger.Warn().Err(err).Msg("config watcher unavailable, reload with SIGHUP")
	}
	g.Go(func() error {
		a.watchReloads(gctx, updates)
		return nil
	})

	if err := a.sup.Apply(a.cfg.Streams()); err != nil {
		a.logger.Error().Err(err).Str(log.FieldEvent, "supervisor.apply_failed").Msg("some streams failed to start")
	}

	g.Go(func() error {
		a.logger.Info().Str("addr", ln.Addr().String()).Int("max_conns", a.cfg.API.MaxConns).Msg("API server listening")
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.API.ShutdownTimeout)
		defer cancel()
		a.hub.Close()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// listen opens the API listener, capped at api.maxConns connections.
func (a *app) listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("api listen %s: %w", a.server.Addr, err)
	}
	if a.cfg.API.MaxConns > 0 {
		ln = netutil.LimitListener(ln, a.cfg.API.MaxConns)
	}
	return ln, nil
}

// watchReloads re-applies the camera list after every successful reload.
// SIGHUP forces a reload.
func (a *app) watchReloads(ctx context.Context, updates <-chan config.AppConfig) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Error().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("SIGHUP reload failed")
			}
		case cfg := <-updates:
			log.Configure(log.Config{Level: cfg.LogLevel, Service: "livewatch", Version: cfg.Version})
			if err := a.sup.Apply(cfg.Streams()); err != nil {
				a.logger.Error().Err(err).Str(log.FieldEvent, "supervisor.apply_failed").Msg("reapplying cameras failed")
			}
		}
	}
}

func (a *app) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close cache")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close history")
		}
	}
	if err := a.tracing.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("shutdown tracing")
	}
}
