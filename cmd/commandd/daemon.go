package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/radio-control/commandd/internal/admin"
	"github.com/radio-control/commandd/internal/audit"
	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/dispatch"
	"github.com/radio-control/commandd/internal/engine"
	"github.com/radio-control/commandd/internal/instructions"
	"github.com/radio-control/commandd/internal/metrics"
	"github.com/radio-control/commandd/internal/scripts"
	"github.com/radio-control/commandd/internal/server"
	"github.com/radio-control/commandd/internal/telemetry"
	"github.com/radio-control/commandd/internal/tracing"
)

// daemon owns every long-lived component of a serve run.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	shutdownTracing tracing.ShutdownFunc
	metrics         *metrics.Metrics
	hub             *telemetry.Hub
	audit           *audit.Logger
	loop            *engine.Loop
	engine          *engine.Engine
	dispatcher      *dispatch.Dispatcher
	server          *server.Server
	admin           *admin.Server

	started  chan net.Addr
	startErr chan error
	stopped  chan struct{}
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{
		cfg:      cfg,
		logger:   logger,
		started:  make(chan net.Addr, 1),
		startErr: make(chan error, 1),
		stopped:  make(chan struct{}, 1),
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	d.shutdownTracing = shutdownTracing

	d.metrics = metrics.New()
	d.hub = telemetry.NewHub(cfg.Admin, logger)

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithCompactThreshold(cfg.Engine.CompactThreshold),
		engine.WithObserver(d.metrics),
		engine.WithObserver(d.hub),
	}
	if cfg.Audit.File != "" {
		d.audit, err = audit.NewLogger(cfg.Audit, logger)
		if err != nil {
			d.hub.Stop()
			_ = shutdownTracing(ctx)
			return nil, fmt.Errorf("audit: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithObserver(d.audit))
	}

	builtins := instructions.Builtins()
	registry := engine.NewRegistry()
	registry.Replace(builtins.Handlers())

	var loader dispatch.Chain
	if cfg.Handlers.ScriptDir != "" {
		loader = append(loader, scripts.NewDir(cfg.Handlers.ScriptDir, logger))
	}
	loader = append(loader, builtins)

	env := engine.NewEnv(logger)
	d.loop = engine.NewLoop(logger)
	d.engine = engine.New(d.loop, registry, env, engineOpts...)
	d.dispatcher = dispatch.New(d.engine, loader, logger)
	d.metrics.TrackQueue(d.engine.Stats)

	d.server = server.New(cfg.Server,
		server.WithLogger(logger),
		server.WithRequestObserver(d.metrics),
		server.WithRequestObserver(d.hub),
	)
	d.server.OnJSONRequest(d.dispatcher.HandleJSONRequest)
	d.hub.WatchServer(d.server)
	d.server.On(server.EventStarted, func(args ...any) {
		d.metrics.SetServerUp(true)
		if len(args) > 0 {
			if addr, ok := args[0].(net.Addr); ok {
				notify(d.started, addr)
			}
		}
	})
	d.server.On(server.EventStartError, func(args ...any) {
		if len(args) > 0 {
			if err, ok := args[0].(error); ok {
				notify(d.startErr, err)
			}
		}
	})
	d.server.On(server.EventStopped, func(...any) {
		d.metrics.SetServerUp(false)
		notify(d.stopped, struct{}{})
	})

	reporter := admin.NewReporter(d.server, d.engine, d.dispatcher)
	env.Status = reporter.Report

	if cfg.Admin.Enabled() {
		d.admin, err = admin.New(cfg.Admin, admin.Deps{
			Reporter: reporter,
			Reloader: d.dispatcher,
			Hub:      d.hub,
			Metrics:  d.metrics.Handler(),
		}, logger)
		if err != nil {
			_ = d.shutdown(ctx)
			return nil, err
		}
	}

	return d, nil
}

// notify delivers v without blocking when nobody is waiting.
func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// start launches the admin server and the command server and waits until
// the command listener is bound.
func (d *daemon) start(ctx context.Context) (net.Addr, error) {
	if d.admin != nil {
		if err := d.admin.Start(); err != nil {
			return nil, err
		}
	}

	if !d.server.Start() {
		return nil, fmt.Errorf("command server is %s", d.server.State())
	}
	select {
	case addr := <-d.started:
		return addr, nil
	case err := <-d.startErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown stops the command server first so no new instructions arrive,
// then releases everything else in reverse construction order.
func (d *daemon) shutdown(ctx context.Context) error {
	var errs []error

	if d.server.Stop() {
		select {
		case <-d.stopped:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("command server stop: %w", ctx.Err()))
		}
	}

	d.hub.Stop()
	if d.admin != nil {
		if err := d.admin.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.loop.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("engine loop: %w", err))
	}
	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if err := d.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}
