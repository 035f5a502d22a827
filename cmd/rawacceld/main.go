package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("rawacceld v%s\n", version)
	fmt.Println("Pointer acceleration filter for Linux input devices")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  rawacceld [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads relative motion from evdev mice, applies rotation, an acceleration")
	fmt.Println("  curve and per-axis sensitivity, and re-emits the result on a uinput")
	fmt.Println("  virtual mouse. Settings are changed over a Unix socket (see rawaccel-ctl),")
	fmt.Println("  an optional HTTP API, or by editing the config file.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML or TOML (by .toml extension) config file")
	fmt.Println()
	fmt.Println("  -device string")
	fmt.Println("        Comma separated input devices (overrides devices.paths)")
	fmt.Println()
	fmt.Println("  -grab")
	fmt.Println("        Take exclusive access to the input devices (default true)")
	fmt.Println()
	fmt.Println("  -uinput string")
	fmt.Printf("        uinput control node (default %q)\n", defaultUinputPath)
	fmt.Println()
	fmt.Println("  -settle-delay-ms int")
	fmt.Printf("        Delay before a settings write is committed (default %d)\n", defaultSettleDelayMS)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -http-addr string")
	fmt.Printf("        Enable the HTTP API on this address (e.g. %q)\n", defaultHTTPAddr)
	fmt.Println()
	fmt.Println("  -watch")
	fmt.Println("        Reload settings when the config file changes (default true)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  rawacceld -config /etc/rawaccel/config.yaml")
	fmt.Println("  rawacceld -device /dev/input/by-id/usb-Logitech-event-mouse -http-addr 127.0.0.1:8457")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to the input devices and write access to /dev/uinput")
	fmt.Println("  - Motion read in bursts (more than one frame per read) is not accelerated")
	fmt.Println()
}

func main() {
	var (
		configPath    = flag.String("config", "", "YAML or TOML config file")
		devices       = flag.String("device", "", "Comma separated input devices")
		grab          = flag.Bool("grab", true, "Take exclusive access to the input devices")
		uinputPath    = flag.String("uinput", defaultUinputPath, "uinput control node")
		settleDelayMS = flag.Int("settle-delay-ms", defaultSettleDelayMS, "Delay before a settings write is committed")
		ipcSocketPath = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		httpAddr      = flag.String("http-addr", "", "Enable the HTTP API on this address")
		watch         = flag.Bool("watch", true, "Reload settings when the config file changes")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			o.Devices = devices
		case "grab":
			o.Grab = grab
		case "uinput":
			o.Uinput = uinputPath
		case "settle-delay-ms":
			o.SettleDelayMS = settleDelayMS
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "watch":
			o.Watch = watch
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	lvl, _ := parseLogLevel(cfg.Logging.Level) // checked by Validate
	level := new(slog.LevelVar)
	level.Set(lvl)
	logger := setupLogger(os.Stdout, level)

	logger.Debug("configuration",
		"config", *configPath,
		"devices", cfg.Devices.Paths,
		"grab", cfg.Devices.Grab,
		"uinput", cfg.Devices.Uinput,
		"settle_delay_ms", cfg.SettleDelayMS,
		"ipc_socket", cfg.IPC.SocketPath,
		"http_enabled", cfg.HTTP.Enabled,
		"http_addr", cfg.HTTP.Addr,
		"watch", cfg.Watch.Enabled,
		"mode_x", cfg.Accel.Modes[0].String(),
		"mode_y", cfg.Accel.Modes[1].String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, cfg, *configPath, level, logger); err != nil {
		logger.Error("daemon stopped", "error", err, "tip", "run as root or add user to the 'input' group")
		stop()
		os.Exit(1)
	}
	logger.Info("shutting down")
}
