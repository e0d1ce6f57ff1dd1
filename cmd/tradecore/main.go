package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/tradecore/config"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one arbitrage scan without executing, print reports and exit")
	dryRun := flag.Bool("dry-run", false, "detect and report opportunities without placing orders")
	report := flag.Bool("report", false, "print risk, performance and order reports and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print opportunities as a table (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("tradecore starting",
		"version", version,
		"config", *configPath,
		"venues", cfg.ExchangeNames(),
		"dry_run", *dryRun,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := build(ctx, cfg, options{dryRun: *dryRun || *once, table: *table})
	if err != nil {
		slog.Error("failed to build core", "err", err)
		os.Exit(1)
	}
	defer app.close()

	switch {
	case *report:
		app.printReport()
		return
	case *once:
		if err := app.runOnce(ctx); err != nil {
			slog.Error("scan failed", "err", err)
			os.Exit(1)
		}
		app.printReport()
		return
	}

	if err := app.run(ctx); err != nil {
		slog.Error("tradecore exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("tradecore stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
