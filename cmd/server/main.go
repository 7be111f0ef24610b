package main

// Package main is the entry point for the civicops-ai server application.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and CLI flags
//   - Initialize structured application logging and the append-only audit log
//   - Open the SQLite store for run history and reference data
//   - Start the REST API server for session and message handling
//   - Start the WebSocket handler for per-session trace streaming
//   - Register and serve health check endpoints
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//   1. REST API accepts operator messages scoped to a session
//   2. The orchestrator classifies intent, clarifies missing scope, and fans
//      out to the read-only reference collaborators for evidence
//   3. The synthesizer builds evidence-cited scenario hypotheses and a
//      recommended response plan
//   4. Every completed turn is recorded as an immutable run with its trace
//   5. WebSocket subscribers receive trace events as each stage completes
//
// Graceful Shutdown:
//   - Stops accepting new HTTP connections
//   - Closes the session registry and its eviction janitor
//   - Closes the SQLite store
//   - Finalizes audit logs

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/civicops/civicops-ai/internal/audit"
	"github.com/civicops/civicops-ai/internal/config"
	"github.com/civicops/civicops-ai/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/civicops/config.yaml", "path to YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("civicops-ai %s\n", version)
		return
	}

	ctx := context.Background()

	// Load configuration from defaults, YAML, and environment variables
	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create configuration manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Audit.AuditLogPath,
		AppLogPath:   cfg.Audit.AppLogPath,
		MaxSize:      cfg.Audit.MaxSizeMB,
		MaxBackups:   cfg.Audit.MaxBackups,
		MaxAge:       cfg.Audit.MaxAgeDays,
		Compress:     cfg.Audit.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create audit logger: %v\n", err)
		os.Exit(1)
	}

	// Create server with all components wired together
	srv, err := server.NewServer(cfg, log, auditLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
	log.Info("civicops-ai started",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal (Ctrl+C or SIGTERM)
	<-sigChan
	log.Info("received shutdown signal")

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		os.Exit(1)
	}
	if err := auditLog.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing audit log: %v\n", err)
	}

	log.Info("shutdown complete")
}

// buildLogger constructs the application logger from the logging section.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Logging.Format == "text" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return zapCfg.Build()
}
