package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/toolbridge/toolbridge/internal/adapter/inbound/http"
	"github.com/toolbridge/toolbridge/internal/adapter/outbound/callog"
	"github.com/toolbridge/toolbridge/internal/config"
	"github.com/toolbridge/toolbridge/internal/domain/session"
	"github.com/toolbridge/toolbridge/internal/service"
	"github.com/toolbridge/toolbridge/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Start the toolbridge relay server.

The server listens for provider and caller attachments on GET /events
and routes messages posted to POST /message. Sessions are created on
first attach and destroyed when the last peer leaves.

Examples:
  # Start with config file settings
  toolbridge serve

  # Start on a different port
  TOOLBRIDGE_SERVER_PORT=9000 toolbridge serve

  # Start with a specific config file
  toolbridge --config /path/to/toolbridge.yaml serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Log)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// stop() restores default signal handling so a second Ctrl+C kills hard.
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	tracer, traceShutdown, err := telemetry.Setup(cfg.Trace.Enabled, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	registry := session.NewRegistry()
	routerOpts := []service.RouterOption{
		service.WithRequestTimeout(cfg.Relay.RequestTimeout()),
		service.WithTracer(tracer),
	}

	var (
		store   *callog.SQLiteStore
		callLog *service.CallLogService
	)
	if cfg.CallLog.Enabled {
		store, err = callog.Open(cfg.CallLog.Path)
		if err != nil {
			return fmt.Errorf("failed to open call log: %w", err)
		}
		callLog = service.NewCallLogService(store, logger)
		callLog.Start(context.Background())
		routerOpts = append(routerOpts, service.WithCallLog(callLog))
		logger.Info("call log enabled", "path", cfg.CallLog.Path)
	}

	router := service.NewRouter(registry, logger, routerOpts...)

	transport := httpadapter.NewTransport(router,
		httpadapter.WithAddr(cfg.Server.Addr()),
		httpadapter.WithKeepAlive(cfg.Relay.KeepAlive()),
		httpadapter.WithVersion(Version),
		httpadapter.WithLogger(logger),
	)

	pidPath := cfg.PidFile
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	logger.Info("starting relay",
		"addr", cfg.Server.Addr(),
		"keep_alive", cfg.Relay.KeepAlive(),
		"request_timeout", cfg.Relay.RequestTimeout(),
		"version", Version)

	serveErr := transport.Start(ctx)

	// Transport is down; flush the call log before closing its store.
	if callLog != nil {
		callLog.Stop()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close call log store", "error", err)
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := traceShutdown(flushCtx); err != nil {
		logger.Warn("failed to flush traces", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	logger.Info("relay stopped")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
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

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
