// Airtable Gateway
//
// A standalone Go binary that relays record CRUD calls from a browser
// frontend to the Airtable REST API, keeping the API token server-side:
//
//	Browser  →  /api/table/:table/records  →  Airtable  →  Browser
//
// # Usage
//
//	airtable-gateway [flags]
//
//	Flags:
//	  -config string     Optional YAML config file, watched for changes
//	  -env-file string   Dotenv file loaded before config (default ".env")
//	  -version           Print version information and exit
//
// # Architecture
//
// Each run of the gateway starts the following components:
//
//  1. Observability server (unless disabled): /healthz, /readyz, /metrics
//  2. Audit trail writer (if audit.file_path is set)
//  3. Kafka change-feed publisher (if events.brokers is set)
//  4. Airtable HTTP client
//  5. Public gateway server on PORT (default 5000)
//
// All components are managed via errgroup for coordinated lifecycle. When the
// config file changes, the current run is cancelled and a new one starts
// with a freshly loaded configuration.
//
// # Signal Handling
//
//	SIGINT/SIGTERM → Cancel context → Drain HTTP servers → Flush events → Close audit → Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/RaikaSurendra/airtable-gateway/internal/airtable"
	"github.com/RaikaSurendra/airtable-gateway/internal/audit"
	"github.com/RaikaSurendra/airtable-gateway/internal/config"
	"github.com/RaikaSurendra/airtable-gateway/internal/events"
	"github.com/RaikaSurendra/airtable-gateway/internal/gateway"
	"github.com/RaikaSurendra/airtable-gateway/internal/observability"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Parse command-line flags.
	configPath := flag.String("config", "", "Path to optional configuration YAML file")
	envFile := flag.String("env-file", ".env", "Path to dotenv file with AIRTABLE_* variables")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("airtable-gateway %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Initialize structured logging. The level is adjusted by each run once
	// its configuration is loaded.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting airtable-gateway",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
	)

	loadEnvFile(*envFile, logger)

	// Setup signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Setup config watcher for hot-reload.
	reloadCh := make(chan struct{}, 1)
	if *configPath != "" {
		go watchConfig(ctx, *configPath, reloadCh, logger)
	}

	for {
		// Create a sub-context for the current run.
		runCtx, runCancel := context.WithCancel(ctx)

		errCh := make(chan error, 1)
		go func() {
			errCh <- run(runCtx, *configPath, logger, level)
		}()

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			runCancel()
			cancel()
			<-errCh // wait for run to exit
			logger.Info("gateway shutdown complete")
			return
		case <-reloadCh:
			logger.Info("reloading configuration...")
			runCancel()
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("previous run exited with error on reload", "error", err)
			}
			logger.Info("restarting with new configuration")
		case err := <-errCh:
			runCancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("gateway exited with error", "error", err)
				os.Exit(1)
			}
			logger.Info("gateway shutdown complete")
			return
		}
	}
}

// loadEnvFile loads path into the process environment. Variables that are
// already set keep their values. A missing file is not an error.
func loadEnvFile(path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("cannot read env file", "path", path, "error", err)
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warn("failed to load env file", "path", path, "error", err)
		return
	}
	logger.Info("loaded env file", "path", path)
}

// watchConfig uses fsnotify to watch the config file for changes.
func watchConfig(ctx context.Context, path string, reloadCh chan<- struct{}, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create config watcher", "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		logger.Error("failed to watch config file", "path", path, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Trigger a reload on Write or Create (some editors replace the file).
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logger.Info("config file changed", "event", event.Name)
				select {
				case reloadCh <- struct{}{}:
				default:
					// already has a reload queued
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}

// run is the main execution function, separated from main() for testability.
// It sets up all components and runs them via errgroup.
func run(ctx context.Context, configPath string, logger *slog.Logger, level *slog.LevelVar) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	level.Set(parseLevel(cfg.LogLevel))

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	// 1. Audit trail.
	auditLog := audit.New(cfg.Audit, logger)
	defer func() {
		if err := auditLog.Close(); err != nil {
			logger.Error("closing audit log", "error", err)
		}
	}()

	// 2. Change-feed publisher.
	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := publisher.Close(flushCtx); err != nil {
			logger.Error("closing event publisher", "error", err)
		}
	}()

	// 3. Airtable client.
	client := airtable.NewClient(cfg.Airtable, logger)

	g, gCtx := errgroup.WithContext(ctx)

	opts := []gateway.Option{
		gateway.WithAuditLogger(auditLog),
		gateway.WithPublisher(publisher),
	}

	// 4. Observability server.
	if cfg.Observability.EnabledValue() {
		obsSrv := observability.NewServer(cfg.Observability.Addr, logger)
		opts = append(opts, gateway.WithReadyFunc(obsSrv.SetReady))
		g.Go(func() error {
			return obsSrv.Start(gCtx)
		})
	}

	// 5. Public gateway.
	srv := gateway.NewServer(cfg, client, logger, opts...)
	g.Go(func() error {
		return srv.Start(gCtx)
	})

	logger.Info("gateway configured",
		"airtable_api", cfg.Airtable.APIURL,
		"static_dir", cfg.Server.StaticDir,
		"audit_enabled", cfg.Audit.FilePath != "",
		"events_enabled", cfg.Events.Enabled(),
		"observability_enabled", cfg.Observability.EnabledValue(),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
