package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/medialistener/internal/adapter/input"
	"github.com/jmylchreest/medialistener/internal/config"
	"github.com/jmylchreest/medialistener/internal/core"
	"github.com/jmylchreest/medialistener/internal/hub"
	"github.com/jmylchreest/medialistener/internal/listener"
)

// ErrAlreadyRun is returned when Run is called more than once.
var ErrAlreadyRun = errors.New("daemon has already run")

// Daemon wires a media source through the normalizer and hub to the socket listener.
type Daemon struct {
	cfg    *config.DaemonConfig
	source input.Source
	logger *slog.Logger

	level      *slog.LevelVar
	configPath string
	watch      bool

	normalizer *core.Normalizer
	hub        *hub.Hub

	// applied is the last configuration seen by applyConfig.
	applied *config.DaemonConfig

	mu    sync.Mutex
	ran   bool
	ready chan struct{}
}

// New creates a Daemon. The normalizer and hub are created here; the
// socket is bound and the source registered by Run.
func New(cfg *config.DaemonConfig, source input.Source, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultDaemonConfig()
	}

	normalizer := core.NewNormalizer()
	h := hub.New(hubOptions(cfg), logger)

	return &Daemon{
		cfg:        cfg,
		source:     source,
		logger:     logger,
		normalizer: normalizer,
		hub:        h,
		applied:    cfg,
		ready:      make(chan struct{}),
	}
}

// SetLogLevel sets the level variable that config reloads update.
func (d *Daemon) SetLogLevel(level *slog.LevelVar) {
	d.level = level
}

// EnableHotReload watches the config file at path and applies changes while running.
func (d *Daemon) EnableHotReload(path string) {
	d.configPath = path
	d.watch = true
}

// Ready is closed once the socket is bound and the source is registered.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Subscribers returns the number of connected clients.
func (d *Daemon) Subscribers() int {
	return d.hub.Count()
}

// Stats returns per-client delivery counters.
func (d *Daemon) Stats() []hub.SubscriberStats {
	return d.hub.Stats()
}

// Run starts the daemon and blocks until ctx is cancelled or the listener
// fails. Startup failures are returned without leaving the socket behind.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.ran {
		d.mu.Unlock()
		return ErrAlreadyRun
	}
	d.ran = true
	d.mu.Unlock()

	mode, err := d.cfg.SocketMode()
	if err != nil {
		return err
	}

	ln, err := listener.Listen(d.cfg.SocketPath(), mode, d.hub, d.logger)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	adapter := NewAdapter(d.source, d.normalizer, d.hub, d.logger)
	if err := adapter.Start(); err != nil {
		ln.Close()
		if rmErr := ln.Remove(); rmErr != nil {
			d.logger.Warn("failed to remove socket", "error", rmErr)
		}
		_ = d.hub.Shutdown(context.Background())
		return err
	}

	var watcher *ConfigWatcher
	if d.watch {
		watcher = d.startWatcher(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ln.Serve(ctx)
	}()

	close(d.ready)
	d.logger.Info("daemon started", "socket", ln.Path(), "source", d.source.Name())

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
	case err := <-serveErr:
		serveErr = nil
		if err != nil {
			runErr = err
			d.logger.Error("listener failed, shutting down", "error", err)
		}
	}

	d.shutdown(adapter, ln, serveErr, watcher)
	return runErr
}

// shutdown stops components in reverse start order.
func (d *Daemon) shutdown(adapter *Adapter, ln *listener.Listener, serveErr <-chan error, watcher *ConfigWatcher) {
	if watcher != nil {
		watcher.Stop()
	}

	if err := adapter.Stop(); err != nil {
		d.logger.Warn("failed to unregister source", "error", err)
	}

	ln.Close()
	if serveErr != nil {
		if err := <-serveErr; err != nil {
			d.logger.Debug("listener stopped with error", "error", err)
		}
	}

	ctx := context.Background()
	if timeout := d.cfg.Shutdown.Timeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := d.hub.Shutdown(ctx); err != nil {
		d.logger.Warn("clients did not drain in time", "error", err)
	} else {
		d.logger.Debug("clients drained", "elapsed", time.Since(start))
	}

	if err := ln.Remove(); err != nil {
		d.logger.Warn("failed to remove socket", "error", err)
	}
	d.logger.Info("daemon stopped")
}

func (d *Daemon) startWatcher(ctx context.Context) *ConfigWatcher {
	watcher, err := NewConfigWatcher(d.configPath, d.logger)
	if err != nil {
		d.logger.Warn("config hot-reload disabled", "error", err)
		return nil
	}
	watcher.SetReloadCallback(d.applyConfig)
	watcher.SetErrorCallback(func(err error) {
		d.logger.Warn("keeping previous configuration", "error", err)
	})
	if err := watcher.Start(ctx, d.cfg); err != nil {
		d.logger.Warn("config hot-reload disabled", "error", err)
		return nil
	}
	return watcher
}

// applyConfig applies the settings that can change without a restart.
// Socket and source changes are reported once, when they first differ from
// both the running settings and the previous reload.
func (d *Daemon) applyConfig(newConfig *config.DaemonConfig) {
	d.mu.Lock()
	prev := d.applied
	d.applied = newConfig
	d.mu.Unlock()

	d.hub.SetOptions(hubOptions(newConfig))

	if d.level != nil {
		if lvl, err := config.ParseLogLevel(newConfig.Log.Level); err == nil {
			d.level.Set(lvl)
		}
	}

	if !sameSocket(newConfig, d.cfg) && !sameSocket(newConfig, prev) {
		d.logger.Warn("socket settings changed, restart required to apply",
			"socket", newConfig.SocketPath())
	}
	if newConfig.Source != d.cfg.Source && newConfig.Source != prev.Source {
		d.logger.Warn("source settings changed, restart required to apply",
			"source", newConfig.Source.Kind)
	}

	d.logger.Info("applied configuration",
		"queue_size", newConfig.Broadcast.QueueSize,
		"overflow", newConfig.Broadcast.Overflow,
		"log_level", newConfig.Log.Level)
}

func sameSocket(a, b *config.DaemonConfig) bool {
	return a.SocketPath() == b.SocketPath() && a.Socket.Mode == b.Socket.Mode
}

func hubOptions(cfg *config.DaemonConfig) hub.Options {
	return hub.Options{
		QueueSize: cfg.Broadcast.QueueSize,
		Overflow:  hub.OverflowPolicy(cfg.Broadcast.Overflow),
	}
}
