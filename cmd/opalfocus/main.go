package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/OpalFocus/internal/config"
	"github.com/cjeanneret/OpalFocus/internal/debug"
	"github.com/cjeanneret/OpalFocus/internal/hw/camera"
	"github.com/cjeanneret/OpalFocus/internal/hw/gpio"
	"github.com/cjeanneret/OpalFocus/internal/journal"
	"github.com/cjeanneret/OpalFocus/internal/logic/focus"
	"github.com/cjeanneret/OpalFocus/internal/preview"
	"github.com/cjeanneret/OpalFocus/internal/web"
)

var defaultConfigPath = filepath.Join("configs", "default.yaml")

const historySize = 100

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// options are the parsed command line.
type options struct {
	auto        bool
	cfgPath     string
	web         webPortFlag
	interactive bool
	history     bool
	position    *int // nil: use the configured default
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{web: webPortFlag{defaultPort: 8080}}
	fset := flag.NewFlagSet("opalfocus", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() {
		fmt.Fprintln(stderr, "Usage: opalfocus [flags] [position]")
		fmt.Fprintln(stderr, "Sets the camera focus: manual position 0-255, or -auto.")
		fset.PrintDefaults()
	}
	fset.BoolVar(&opts.auto, "auto", false, "enable autofocus instead of a manual position")
	fset.StringVar(&opts.cfgPath, "config", defaultConfigPath, "path to config file")
	fset.Var(&opts.web, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	fset.BoolVar(&opts.interactive, "interactive", false, "start an interactive focus shell")
	fset.BoolVar(&opts.history, "history", false, "print recorded control sessions and exit")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	switch fset.NArg() {
	case 0:
	case 1:
		p, err := strconv.Atoi(fset.Arg(0))
		if err != nil {
			return nil, fmt.Errorf("position must be an integer, got %q", fset.Arg(0))
		}
		if opts.auto {
			return nil, errors.New("-auto and a position are mutually exclusive")
		}
		opts.position = &p
	default:
		return nil, fmt.Errorf("expected at most one position, got %d arguments", fset.NArg())
	}
	return opts, nil
}

// loadConfig reads path, falling back to built-in defaults when the
// default file does not exist, then applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath {
		cfg = config.Default()
	} else {
		if err := config.ValidateConfigPath(path); err != nil {
			return nil, err
		}
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app wires the configured hardware to a focus controller.
type app struct {
	cfg     *config.Config
	session *camera.Session
	ctrl    *focus.Controller
	recent  *journal.Ring
	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, recent: journal.NewRing(historySize)}

	debug.Value("Mock GPIO", cfg.GPIO.Mock)
	gpioDriver, err := gpio.NewDriver(cfg.GPIO.Mock)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	a.closers = append(a.closers, gpioDriver.Close)
	indicator := gpio.NewIndicator(gpioDriver, cfg.GPIO.IndicatorPin)

	var j journal.Journal = a.recent
	if cfg.Journal.Path != "" {
		fj, err := journal.NewFileJournal(cfg.Journal.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, fj.Close)
		j = journal.NewMulti(a.recent, fj)
	}

	socket, err := camera.ParseBoardSocket(cfg.Camera.BoardSocket)
	if err != nil {
		a.close()
		return nil, err
	}

	var opener camera.Opener
	if cfg.Camera.Mock {
		debug.Info("Using MOCK camera (development mode)")
		mock := camera.NewMockCamera()
		mock.SetIOTimeout(cfg.IOTimeout())
		opener = mock
	} else {
		opener = camera.NewUSBOpener(cfg.Camera.VendorID, cfg.Camera.ProductID, cfg.IOTimeout())
	}
	debug.Value("Camera", fmt.Sprintf("%04x:%04x %s/%s", cfg.Camera.VendorID, cfg.Camera.ProductID, socket, cfg.Camera.ControlStream))

	a.session = camera.NewSession(opener, camera.SessionConfig{
		Socket:    socket,
		Stream:    cfg.Camera.ControlStream,
		Settle:    cfg.SettleDelay(),
		Journal:   j,
		Indicator: indicator,
	})
	a.ctrl = focus.NewController(a.session, cfg.Defaults.FocusPosition)
	return a, nil
}

// close waits for in-flight sessions, then releases resources in reverse order.
func (a *app) close() {
	if a.ctrl != nil {
		a.ctrl.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			debug.Error(err)
		}
	}
	a.closers = nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(opts.cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config: %v\n", err)
		return 1
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if opts.history {
		return printHistory(cfg.Journal.Path, stdout, stderr)
	}

	// Reject a bad position before any hardware is touched.
	if opts.position != nil {
		if err := camera.ValidatePosition(*opts.position); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	switch {
	case opts.web.port() > 0:
		if err := runWeb(ctx, a, opts.web.port(), stdout); err != nil {
			fmt.Fprintf(stderr, "Error: web server: %v\n", err)
			return 1
		}
		return 0
	case opts.interactive:
		if err := newShell(a.ctrl, stdout).run(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	mode := camera.Auto()
	if !opts.auto {
		p := cfg.Defaults.FocusPosition
		if opts.position != nil {
			p = *opts.position
		}
		if mode, err = camera.Manual(p); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	return runOnce(a.ctrl, mode, stdout, stderr)
}

// runOnce applies mode and waits for the session: the CLI's only job.
func runOnce(ctrl *focus.Controller, mode camera.FocusMode, stdout, stderr io.Writer) int {
	var d *focus.Dispatch
	if p, ok := mode.Position(); ok {
		fmt.Fprintf(stdout, "Setting manual focus (value: %d)...\n", p)
		var err error
		if d, err = ctrl.SetManual(p); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, "Enabling auto focus...")
		d = ctrl.SetAuto()
	}

	if err := d.Wait(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var ce *camera.ControlError
		if errors.As(err, &ce) && ce.Hint() != "" {
			fmt.Fprintln(stderr, ce.Hint())
		}
		return 1
	}

	if mode.IsAuto() {
		fmt.Fprintln(stdout, "Auto focus ENABLED")
	} else {
		fmt.Fprintln(stdout, "Auto focus DISABLED - manual focus applied")
		fmt.Fprintln(stdout, "The setting persists across applications until the camera is power cycled")
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Tip: run 'opalfocus -web' and open the preview to check sharpness")
	return 0
}

func runWeb(ctx context.Context, a *app, port int, stdout io.Writer) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(stdout, web.BroadcastWriter(broadcaster)))

	opts := web.Options{History: a.recent.Entries}
	if src, err := newPreviewSource(a.cfg); err != nil {
		debug.Error(fmt.Errorf("preview disabled: %w", err))
	} else {
		streamer := preview.NewStreamer(src)
		go func() {
			if err := streamer.Run(ctx); err != nil {
				debug.Error(err)
			}
		}()
		opts.Preview = streamer
	}

	ui := web.UIConfig{
		DefaultPosition: a.cfg.Defaults.FocusPosition,
		MinPosition:     camera.MinPosition,
		MaxPosition:     camera.MaxPosition,
		SettleMs:        a.cfg.Camera.SettleMs,
	}
	srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, a.ctrl, ui, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Open http://localhost:%d/\n", port)
	return srv.Run(ctx)
}

func newPreviewSource(cfg *config.Config) (preview.Source, error) {
	if cfg.Preview.Mock {
		debug.Info("Using MOCK preview (test pattern)")
		return preview.NewPatternSource(cfg.Preview.WidthPx, cfg.Preview.HeightPx, 100*time.Millisecond), nil
	}
	candidates := preview.Candidates(cfg.Preview.Device, cfg.Preview.Candidates)
	c, err := preview.Discover(preview.V4L2{}, candidates, cfg.Preview.WidthPx, cfg.Preview.HeightPx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func printHistory(path string, stdout, stderr io.Writer) int {
	if path == "" {
		fmt.Fprintln(stderr, "Error: no journal configured (journal.path or OPALFOCUS_JOURNAL_PATH)")
		return 1
	}
	entries, err := journal.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if len(entries) == 0 {
			return 1
		}
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-12s %-5s %6dms", e.Timestamp.Local().Format(time.DateTime), e.Mode, e.Outcome, e.Duration.Milliseconds())
		if e.Error != "" {
			line += fmt.Sprintf("  %s: %s", e.Op, e.Error)
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
