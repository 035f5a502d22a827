package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rawaccel"
)

// ============================================================================
// Daemon wiring
// ============================================================================
// One goroutine per input device, plus the IPC server, the optional HTTP
// server with its websocket hub, and the optional config watcher. The first
// one to fail cancels the rest.
// ============================================================================

// runDaemon builds the filter state and runs every component until ctx is
// canceled or one of them fails.
func runDaemon(ctx context.Context, cfg Config, cfgPath string, level *slog.LevelVar, logger *slog.Logger) error {
	state := rawaccel.NewState(
		rawaccel.WithSettings(cfg.ToSettings()),
		rawaccel.WithSettleDelay(cfg.SettleDelay()),
		rawaccel.WithLogger(logger.With("component", "filter")),
	)
	if state.Degraded() {
		logger.Warn("running without acceleration tables; curves are disabled")
	}

	devices := make([]*inputDevice, 0, len(cfg.Devices.Paths))
	defer func() {
		for _, d := range devices {
			_ = d.Close()
		}
	}()
	caps := mouseCapabilities()
	for _, path := range cfg.Devices.Paths {
		d, err := openInputDevice(path, cfg.Devices.Grab, logger)
		if err != nil {
			return err
		}
		devices = append(devices, d)
		caps.merge(d.caps)
	}

	mouse, err := createVirtualMouse(cfg.Devices.Uinput, cfg.Devices.VirtualName, caps)
	if err != nil {
		return fmt.Errorf("create virtual mouse: %w", err)
	}
	defer mouse.Close()

	for _, d := range devices {
		if err := d.connect(state, mouse); err != nil {
			return err
		}
		d.logger.Info("input device connected", "grab", d.grabbed)
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, d := range devices {
		g.Go(func() error { return d.run(gctx) })
	}

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, state, logger.With("component", "ipc"))
	})

	if cfg.HTTP.Enabled {
		hub := NewHub(logger.With("component", "ws"), HubConfig{})
		state.Subscribe(hub.BroadcastSettings)
		api := &apiServer{state: state, hub: hub, devices: len(devices), logger: logger.With("component", "http")}

		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Addr, api.routes(), api.logger)
		})
	}

	if cfg.Watch.Enabled && cfgPath != "" {
		debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
		g.Go(func() error {
			return watchConfig(gctx, cfgPath, debounce, func() {
				reloadConfig(cfgPath, state, level, logger)
			}, logger.With("component", "watch"))
		})
	}

	logger.Info("rawacceld running",
		"devices", len(devices),
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.Enabled,
		"watch", cfg.Watch.Enabled && cfgPath != "")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadConfig re-reads the config file and commits its settings. A file that
// fails to parse or validate leaves the active settings in place.
func reloadConfig(path string, state *rawaccel.State, level *slog.LevelVar, logger *slog.Logger) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		logger.Error("config reload failed", "error", err)
		return
	}
	if err := validateSettings(cfg.Accel); err != nil {
		logger.Error("config reload rejected", "error", fmt.Errorf("accel.%w", err))
		return
	}
	if lvl, err := parseLogLevel(cfg.Logging.Level); err == nil {
		level.Set(lvl)
	} else {
		logger.Warn("config reload: keeping log level", "error", err)
	}

	next := cfg.ToSettings()
	next.Normalize()
	if next == state.Read() {
		logger.Debug("config reload: settings unchanged")
		return
	}
	logger.Info("config reload: applying settings")
	state.Write(next)
}
