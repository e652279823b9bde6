package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rmacdonaldsmith/shellwatch/internal/config"
	"github.com/rmacdonaldsmith/shellwatch/internal/daemon"
	"github.com/rmacdonaldsmith/shellwatch/internal/logging"
)

const (
	// Application info
	appName    = "shellwatch"
	appVersion = "0.1.0"

	// shutdownTimeout bounds the graceful stop after a signal
	shutdownTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// run starts the daemon and blocks until ctx is cancelled
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.FromArgs(appName, args)
	if errors.Is(err, config.ErrShowVersion) {
		fmt.Fprintf(stdout, "%s v%s\n", appName, appVersion)
		return nil
	}
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	lvl, _ := logging.ParseLevel(cfg.Log.Level)
	level.Set(lvl)
	logger, err := logging.New(logging.Options{Format: cfg.Log.Format, Level: level, Output: stderr})
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("🚀 Starting %s v%s", appName, appVersion))
	if cfg.Path() != "" {
		logger.Info("📋 Loaded configuration", "path", cfg.Path())
	}

	node, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	logger.Info("▶️  Starting node...")
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	if cfg.Path() != "" {
		watcher, err := config.Watch(cfg.Path(), logger, func(next *config.Config) {
			applyConfig(logger, level, cfg, next)
		})
		if err != nil {
			logger.Warn("⚠️  Config file will not be reloaded", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	showStartupInfo(ctx, logger, node)
	logger.Info(fmt.Sprintf("✅ %s started successfully!", appName))
	logger.Info("💡 Use Ctrl+C to shutdown gracefully")

	select {
	case <-ctx.Done():
		logger.Info("🛑 Shutting down gracefully...")
	case <-node.Done():
		logger.Error("❌ Event loop stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := node.Stop(shutdownCtx); err != nil {
		logger.Warn("⚠️  Error during graceful stop", "error", err)
	}

	logger.Info(fmt.Sprintf("👋 %s stopped", appName))
	return nil
}

// applyConfig applies the parts of a reloaded configuration that can change
// at runtime. Only the log level can; everything else needs a restart.
func applyConfig(logger *slog.Logger, level *slog.LevelVar, current, next *config.Config) {
	if lvl, err := logging.ParseLevel(next.Log.Level); err == nil && lvl != level.Level() {
		level.Set(lvl)
		logger.Info("🔧 Log level changed", "level", lvl.String())
	}

	restart := current.Broker != next.Broker ||
		current.IPC != next.IPC ||
		current.HTTP != next.HTTP ||
		current.GRPC != next.GRPC ||
		current.Log.Format != next.Log.Format
	if restart {
		logger.Warn("⚠️  Configuration changes other than the log level take effect on restart")
	}
}

// showStartupInfo displays the transports and health after startup
func showStartupInfo(ctx context.Context, logger *slog.Logger, node *daemon.Node) {
	transports := node.Transports()
	names := make([]string, 0, len(transports))
	for name := range transports {
		names = append(names, name)
	}
	sort.Strings(names)

	logger.Info("🔌 Transports:")
	for _, name := range names {
		logger.Info("   "+name, "address", transports[name])
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	health, err := node.GetHealth(ctx)
	if err != nil {
		logger.Warn("⚠️  Could not get health status", "error", err)
		return
	}
	logger.Info("🏥 Health Status: "+healthStatus(health.Healthy),
		"scopes", health.Scopes, "clients", health.Clients)
}

// healthStatus returns a colored health status string
func healthStatus(healthy bool) string {
	if healthy {
		return "✅ Healthy"
	}
	return "❌ Unhealthy"
}
