package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("smoothscroll v%s\n", version)
	fmt.Println("Inertial scrolling daemon for Linux mice")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  smoothscroll [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Grabs a physical mouse, swallows its discrete wheel notches, and")
	fmt.Println("  re-emits them as decaying sequences of high-resolution wheel events")
	fmt.Println("  on a virtual uinput device, producing inertial (kinetic) scrolling.")
	fmt.Println("  Reversing the wheel, pressing a key, or moving the mouse brakes the")
	fmt.Println("  ongoing animation.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -device string")
	fmt.Println("        Input device path, or \"auto\" to scan for a wheel mouse (default \"auto\")")
	fmt.Println()
	fmt.Println("  -output-name string")
	fmt.Printf("        Name of the virtual output device (default %q)\n", defaultOutputName)
	fmt.Println()
	fmt.Println("  -free-spin-key int")
	fmt.Println("        EV_KEY code that toggles free spin instead of stopping (0 disables)")
	fmt.Println()
	fmt.Println("  -tick-interval-us int")
	fmt.Printf("        Emission cadence in microseconds (default %d)\n", defaultTickIntervalUS)
	fmt.Println()
	fmt.Println("  -initial-speed float")
	fmt.Printf("        Seed speed for a fresh gesture, units/s (default %.0f)\n", defaultInitialSpeed)
	fmt.Println()
	fmt.Println("  -damping float")
	fmt.Printf("        Exponential damping rate, 1/s (default %.1f)\n", defaultDamping)
	fmt.Println()
	fmt.Println("  -speed-factor float")
	fmt.Printf("        Speed estimator multiplier (default %.0f)\n", defaultSpeedFactor)
	fmt.Println()
	fmt.Println("  -use-braking")
	fmt.Println("        Reverse-direction notches brake the animation (default true)")
	fmt.Println()
	fmt.Println("  -use-mouse-braking")
	fmt.Println("        Pointer motion brakes the animation (default true)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for control commands (default \"/tmp/smoothscroll.sock\")")
	fmt.Println()
	fmt.Println("  -state-ws-port int")
	fmt.Println("        State websocket listener port, 0 disables (default 0)")
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
	fmt.Println("  # Auto-detect the mouse and run with defaults")
	fmt.Println("  smoothscroll")
	fmt.Println()
	fmt.Println("  # Explicit device, 60 Hz cadence, verbose logging")
	fmt.Println("  smoothscroll -device /dev/input/event4 -tick-interval-us 16667 -log-level debug")
	fmt.Println()
	fmt.Println("  # Toggle free spin from another terminal")
	fmt.Println("  scroll-ctl free-spin on")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to the input device and write access to")
	fmt.Println("    /dev/uinput (run as root or set up udev rules)")
	fmt.Println("  - The physical device is grabbed exclusively; all events reach the")
	fmt.Println("    desktop through the virtual device only")
	fmt.Println()
}

func main() {
	// Handle help and version flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		device          = flag.String("device", "auto", "Input device path or \"auto\"")
		outputName      = flag.String("output-name", defaultOutputName, "Name of the virtual output device")
		freeSpinKey     = flag.Int("free-spin-key", 0, "EV_KEY code that toggles free spin (0 disables)")
		tickIntervalUS  = flag.Int("tick-interval-us", defaultTickIntervalUS, "Emission cadence in microseconds")
		initialSpeed    = flag.Float64("initial-speed", defaultInitialSpeed, "Seed speed for a fresh gesture (units/s)")
		damping         = flag.Float64("damping", defaultDamping, "Exponential damping rate (1/s)")
		speedFactor     = flag.Float64("speed-factor", defaultSpeedFactor, "Speed estimator multiplier")
		useBraking      = flag.Bool("use-braking", true, "Reverse-direction notches brake the animation")
		useMouseBraking = flag.Bool("use-mouse-braking", true, "Pointer motion brakes the animation")
		ipcSocketPath   = flag.String("ipc-socket", "/tmp/smoothscroll.sock", "Unix domain socket path for control commands")
		stateWSPort     = flag.Int("state-ws-port", 0, "State websocket listener port (0 disables)")
		logLevelStr     = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_               = flag.Bool("version", false, "Print version and exit")
		_               = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Start from defaults, layer the config file, then explicit flags.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	overrides := FlagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			overrides.Device = device
		case "free-spin-key":
			overrides.FreeSpinKey = freeSpinKey
		case "output-name":
			overrides.OutputName = outputName
		case "tick-interval-us":
			overrides.TickIntervalUS = tickIntervalUS
		case "initial-speed":
			overrides.InitialSpeed = initialSpeed
		case "damping":
			overrides.Damping = damping
		case "speed-factor":
			overrides.SpeedFactor = speedFactor
		case "use-braking":
			overrides.UseBraking = useBraking
		case "use-mouse-braking":
			overrides.UseMouseMovementBraking = useMouseBraking
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "state-ws-port":
			overrides.StateWSPort = stateWSPort
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Resolve the input device.
	devicePath := cfg.Input.Device
	if devicePath == "auto" {
		devicePath, err = detectWheelDevice(logger)
		if err != nil {
			logger.Error("device auto-detection failed", "error", err)
			os.Exit(1)
		}
	}

	devFd, err := openInputDevice(devicePath)
	if err != nil {
		logger.Error("failed to open input device", "device", devicePath, "error", err,
			"tip", "run as root or add user to the 'input' group")
		os.Exit(1)
	}
	defer unix.Close(devFd)

	name, err := deviceName(devFd)
	if err != nil {
		logger.Warn("could not read device name", "error", err)
	}
	id, err := deviceID(devFd)
	if err != nil {
		logger.Warn("could not read device id", "error", err)
	}
	logger.Info("input device", "path", devicePath, "name", name,
		"bus", fmt.Sprintf("%#x", id.Bustype), "vendor", fmt.Sprintf("%#x", id.Vendor),
		"product", fmt.Sprintf("%#x", id.Product))

	caps, err := queryCaps(devFd)
	if err != nil {
		logger.Error("failed to enumerate device capabilities", "error", err)
		os.Exit(1)
	}
	if !caps.hasRel(REL_WHEEL) {
		logger.Error("device has no vertical wheel", "device", devicePath)
		os.Exit(1)
	}

	if err := grabDevice(devFd, true); err != nil {
		logger.Error("failed to grab input device", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := grabDevice(devFd, false); err != nil {
			logger.Warn("failed to ungrab input device", "error", err)
		}
	}()

	outFd, err := createOutputDevice(cfg.Output.Name, cfg.Output.Vendor, cfg.Output.Product, cfg.Output.Version, caps)
	if err != nil {
		logger.Error("failed to create virtual output device", "error", err,
			"tip", "check write access to /dev/uinput")
		os.Exit(1)
	}
	defer func() {
		if err := destroyOutputDevice(outFd); err != nil {
			logger.Warn("failed to destroy virtual output device", "error", err)
		}
	}()
	logger.Info("virtual output device created", "name", cfg.Output.Name)

	smoother := newWheelSmoother(cfg.ToSmootherOptions(), logger)

	var hub *Hub
	if cfg.StateWS.Port > 0 {
		hub = NewHub(logger)
	}

	d, err := newDaemon(smoother, devFd, outFd, cfg.Input.FreeSpinKey, hub, logger)
	if err != nil {
		logger.Error("failed to initialize dispatch loop", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, d, logger)
	})

	if hub != nil {
		g.Go(func() error {
			return hub.Run(gctx)
		})
		g.Go(func() error {
			return runStateServer(gctx, cfg.StateWS.Port, hub, d, logger)
		})
	}

	g.Go(func() error {
		return d.run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
