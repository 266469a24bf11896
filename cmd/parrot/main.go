// Command parrot is the main entry point for the parrot realtime API
// simulator server.
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
	"time"

	"github.com/parrotlabs/parrot/internal/config"
	"github.com/parrotlabs/parrot/internal/health"
	"github.com/parrotlabs/parrot/internal/observe"
	"github.com/parrotlabs/parrot/internal/resilience"
	"github.com/parrotlabs/parrot/internal/server"
	"github.com/parrotlabs/parrot/internal/timinglog"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload templates and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parrot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parrot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("parrot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "parrot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Timing store (optional) ───────────────────────────────────────────────
	var serverOpts []server.Option
	serverOpts = append(serverOpts, server.WithLogLevelVar(level))

	if dsn := cfg.TimingLog.PostgresDSN; dsn != "" {
		store, err := timinglog.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect timing store", "err", err)
			return 1
		}
		defer store.Close()
		serverOpts = append(serverOpts,
			server.WithTimingSink(resilience.NewTimingSink(store, resilience.CircuitBreakerConfig{Name: "timing-store"})),
			server.WithHealthCheckers(health.Checker{Name: "timing-store", Check: store.Ping}),
		)
		slog.Info("timing store connected")
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv, err := server.New(cfg, serverOpts...)
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Config hot reload (optional) ──────────────────────────────────────────
	if *watch {
		watcher, err := config.NewWatcher(*configPath, srv.ApplyConfig)
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          parrot — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Model", cfg.Session.Model)
	printRow("Templates", fmt.Sprintf("%d", len(cfg.Templates)))
	if cfg.Fallback != nil {
		printRow("Fallback", cfg.Fallback.Key)
	} else {
		printRow("Fallback", "(built-in)")
	}
	printBackend("VAD", cfg.Backends.VAD.Name)
	printBackend("Transcriber", cfg.Backends.Transcriber.Name)
	if cfg.TimingLog.PostgresDSN != "" {
		printRow("Timing log", "postgres")
	} else {
		printRow("Timing log", "(in-memory)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

func printBackend(label, name string) {
	if name == "" {
		name = "(disabled)"
	}
	printRow(label, name)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
