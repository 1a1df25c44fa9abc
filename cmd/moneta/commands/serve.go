package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/moneta-labs/moneta/config"
	"github.com/moneta-labs/moneta/errors"
	"github.com/moneta-labs/moneta/logger"
	"github.com/moneta-labs/moneta/pipeline"
	"github.com/moneta-labs/moneta/run"
	"github.com/moneta-labs/moneta/server"
)

// ServeCmd starts the Moneta server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the Moneta server (API + run orchestrator)",
	Long: `Launch the Moneta server in foreground mode.

The server accepts analysis submissions over HTTP, executes them
asynchronously against the analysis pipeline, and tracks every run in
SQLite. Interrupted runs are recovered on startup, and a background
reaper settles runs orphaned by earlier crashes.

The run feed at /ws/runs streams lifecycle transitions to WebSocket
subscribers as they happen.`,
	RunE: runServe,
}

var (
	servePort     int
	serveDBPath   string
	servePipeline string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
	ServeCmd.Flags().StringVar(&servePipeline, "pipeline-url", "", "Analysis pipeline base URL (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Get verbosity flag - default to 1 (Info) for the server
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}
	logger.SetLevel(logger.VerbosityToLevel(verbosity))

	// Load configuration (env > project > user > system > default)
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	port := servePort
	if port == 0 {
		port = cfg.GetServerPort()
	}

	// Open and migrate database
	database, err := openDatabase(serveDBPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := run.NewStore(database)

	// Analysis pipeline client executes the runs
	pipelineCfg := pipeline.Config{
		URL:               cfg.Pipeline.URL,
		RequestsPerMinute: cfg.Pipeline.RequestsPerMinute,
	}
	if servePipeline != "" {
		pipelineCfg.URL = servePipeline
	}
	executor := pipeline.NewClient(pipelineCfg, logger.Logger)

	// Parent context for all background components
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestrator := run.NewOrchestratorWithContext(ctx, store, executor, run.Config{
		Deadline:      cfg.Run.Deadline(),
		ShutdownGrace: cfg.Run.ShutdownGrace(),
	}, logger.Logger)
	orchestrator.Start() // recovers runs interrupted by an earlier shutdown

	var reaper *run.Reaper
	if cfg.Run.StuckAfter() > 0 {
		reaper = run.NewReaperWithContext(ctx, store, orchestrator.Events(), run.ReaperConfig{
			Interval:   cfg.Run.ReaperInterval(),
			StuckAfter: cfg.Run.StuckAfter(),
		}, logger.Logger)
		reaper.Start()
	}

	// Watch the user config file for edits so log level changes apply
	// without a restart. No watcher if the file doesn't exist yet.
	watcher := startConfigWatcher()

	// Print startup banner
	printStartupBanner(verbosity, resolveDatabasePath(serveDBPath), port, pipelineCfg.URL)

	srv := server.New(store, orchestrator, reaper, cfg.GetServerAllowedOrigins(), logger.Logger)

	// Start server in background
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	// Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		// Server failed to start or stopped unexpectedly
		stopComponents(nil, reaper, orchestrator, watcher)
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		// Start graceful shutdown in background
		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- stopComponents(srv, reaper, orchestrator, watcher)
		}()

		// Wait for either shutdown completion or second Ctrl+C
		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			// Second Ctrl+C - force immediate exit
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// stopComponents stops everything in reverse order of startup: the
// server stops accepting work first, then the reaper, then the
// orchestrator drains in-flight runs.
func stopComponents(srv *server.MonetaServer, reaper *run.Reaper, orchestrator *run.Orchestrator, watcher *config.Watcher) error {
	var stopErr error
	if srv != nil {
		stopErr = srv.Stop()
	}
	if reaper != nil {
		reaper.Stop()
	}
	orchestrator.Stop()
	if watcher != nil {
		watcher.Stop()
	}
	return stopErr
}

// startConfigWatcher watches the user config file and applies log level
// changes at runtime. Returns nil when there is no config file to watch.
func startConfigWatcher() *config.Watcher {
	configPath := config.DefaultUserConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		logger.Debugw("No user config file, skipping config watcher", "path", configPath)
		return nil
	}

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		logger.Warnw("Failed to create config watcher", "path", configPath, "error", err)
		return nil
	}

	watcher.OnReload(func(newCfg *config.Config) error {
		level, err := zapcore.ParseLevel(newCfg.Log.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", newCfg.Log.Level)
		}
		logger.SetLevel(level)
		logger.Infow("Applied reloaded log level", "level", newCfg.Log.Level)
		return nil
	})

	watcher.Start()
	config.SetGlobalWatcher(watcher)
	logger.Infow("Watching config file for changes", "path", configPath)
	return watcher
}
