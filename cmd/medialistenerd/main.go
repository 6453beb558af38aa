// Package main is the entry point for the medialistenerd playback event daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmylchreest/medialistener/internal/adapter/input"
	"github.com/jmylchreest/medialistener/internal/config"
	"github.com/jmylchreest/medialistener/internal/daemon"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/media-listener/daemon.toml)")
	socketPath := flag.String("socket", "", "Override the socket path")
	sourceKind := flag.String("source", "", "Override the media source (mpris, stdin, file)")
	sourcePath := flag.String("source-path", "", "Input file for --source=file")
	player := flag.String("player", "", "Only follow MPRIS players whose bus name contains this")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	logFile := flag.String("log-file", "", "Write logs to this file instead of stderr")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("medialistenerd version", version)
		return 0
	}

	// Set up structured logging
	var logOut io.Writer = os.Stderr
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	path := *configPath
	if path == "" {
		var err error
		path, err = config.DaemonConfigPath()
		if err != nil {
			logger.Error("failed to resolve config path", "error", err)
			return 1
		}
	}
	cfg, err := config.LoadDaemonConfig(path)
	if err != nil {
		logger.Error("failed to load config", "path", path, "error", err)
		return 1
	}

	applyFlags(cfg, *socketPath, *sourceKind, *sourcePath, *player)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	lvl, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	if *verbose {
		lvl = slog.LevelDebug
	}
	level.Set(lvl)

	logger.Info("starting medialistenerd", "version", version, "config", path)

	source, err := input.NewSource(input.Options{
		Kind:             cfg.Source.Kind,
		Path:             cfg.Source.Path,
		Player:           cfg.Source.Player,
		PositionInterval: cfg.Source.PositionInterval.Duration(),
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to create media source", "error", err)
		return 1
	}

	d := daemon.New(cfg, source, logger)
	d.SetLogLevel(level)
	d.EnableHotReload(path)

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reportStats(ctx, d, logger)

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited with error", "error", err)
		return 1
	}

	logger.Info("medialistenerd stopped")
	return 0
}

// applyFlags overrides config values with any command line flags that were set.
func applyFlags(cfg *config.DaemonConfig, socketPath, sourceKind, sourcePath, player string) {
	if socketPath != "" {
		cfg.Socket.Path = socketPath
	}
	if sourceKind != "" {
		cfg.Source.Kind = sourceKind
	}
	if sourcePath != "" {
		cfg.Source.Path = sourcePath
		if sourceKind == "" {
			cfg.Source.Kind = input.KindFile
		}
	}
	if player != "" {
		cfg.Source.Player = player
	}
}

// reportStats logs per-subscriber statistics on SIGUSR1.
func reportStats(ctx context.Context, d *daemon.Daemon, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			stats := d.Stats()
			logger.Info("subscriber stats", "subscribers", len(stats))
			for _, s := range stats {
				logger.Info("subscriber",
					"id", s.ID,
					"connected_at", s.ConnectedAt,
					"queued", s.Queued,
					"sent", s.Sent,
					"dropped", s.Dropped)
			}
		}
	}
}
