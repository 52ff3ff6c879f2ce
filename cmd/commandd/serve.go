package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/logging"
)

// shutdownGrace is added to the command server's shutdown timeout to bound
// the whole teardown.
const shutdownGrace = 5 * time.Second

var errUnexpectedStop = errors.New("command server stopped unexpectedly")

type serveOptions struct {
	configPath string
	host       string
	port       int
	adminPort  int
	scriptDir  string
	logLevel   string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command server",
		Long: `Run the command server until SIGINT or SIGTERM.

Configuration is layered: built-in defaults, then the YAML file given by
--config, then COMMANDD_* environment variables, then flags.

Examples:
  commandd serve
  commandd serve --config /etc/commandd.yaml
  commandd serve --port 0 --admin-port 9090 --scripts ./scripts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Host to bind the command server to")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Command server port (0 picks a free port)")
	cmd.Flags().IntVar(&opts.adminPort, "admin-port", 0, "Admin server port (0 disables it)")
	cmd.Flags().StringVar(&opts.scriptDir, "scripts", "", "Directory of <name>.lua instruction scripts")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}

// loadServeConfig applies flags that were set on top of the loaded configuration.
func loadServeConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("admin-port") {
		cfg.Admin.Port = opts.adminPort
	}
	if flags.Changed("scripts") {
		cfg.Handlers.ScriptDir = opts.scriptDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, closer := logging.New(cfg.Log)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}

	addr, err := d.start(ctx)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+shutdownGrace)
		defer cancel()
		return errors.Join(err, d.shutdown(shutdownCtx))
	}
	logger.Info("commandd started", "addr", addr.String(), "version", version, "scripts", cfg.Handlers.ScriptDir)
	if d.admin != nil {
		logger.Info("admin surface enabled", "addr", d.admin.Addr().String(), "auth", cfg.Admin.AuthSecret != "")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-d.stopped:
		runErr = errUnexpectedStop
		logger.Error("command server stopped unexpectedly", "error", d.server.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+shutdownGrace)
	defer cancel()
	if err := d.shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		runErr = errors.Join(runErr, err)
	}

	logger.Info("commandd stopped")
	return runErr
}
