// keyoverlay shows keyboard and mouse presses as bars rising in a window.
//
// Usage:
//
//	keyoverlay [flags]
//
// The configuration file is created with defaults on first run and
// reloaded whenever it changes. Send SIGHUP to force a reload.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"gioui.org/app"
	"gioui.org/io/system"
	"gioui.org/op"
	"gioui.org/unit"
	"golang.org/x/sync/errgroup"

	"keyoverlay/internal/config"
	"keyoverlay/internal/coordinator"
	"keyoverlay/internal/health"
	"keyoverlay/internal/input"
	"keyoverlay/internal/logging"
	"keyoverlay/internal/metrics"
	"keyoverlay/internal/monitor"
	"keyoverlay/internal/notify"
	"keyoverlay/internal/render"
)

var version = "dev"

type options struct {
	configPath   string
	logLevel     string
	logJSON      bool
	metricsAddr  string
	debounce     time.Duration
	doubleEscape bool
	showVersion  bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", config.DefaultPath(), "path to the configuration file")
	flag.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	flag.BoolVar(&o.logJSON, "log-json", false, "write logs as JSON")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "serve metrics on this address, e.g. 127.0.0.1:9464")
	flag.DurationVar(&o.debounce, "debounce", monitor.DefaultDebounce, "quiet period before reloading a changed config")
	flag.BoolVar(&o.doubleEscape, "exit-on-double-escape", true, "quit when Escape is pressed twice quickly")
	flag.BoolVar(&o.showVersion, "version", false, "print version and exit")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Println("keyoverlay", version)
		return
	}

	go func() {
		os.Exit(run(opts))
	}()
	app.Main()
}

func run(opts options) int {
	cfg, created, err := config.EnsureExists(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyoverlay: %v\n", err)
		return 1
	}

	logger, err := setupLogging(cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyoverlay: %v\n", err)
		return 1
	}
	defer logger.Close()

	if created {
		logger.Info("wrote default config", "path", opts.configPath)
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "warning", w)
	}

	notifier := newNotifier(logger)
	if c, ok := notifier.(interface{ Close() error }); ok {
		defer c.Close()
	}

	mon, err := monitor.New(opts.configPath,
		monitor.WithDebounce(opts.debounce),
		monitor.WithNotifier(notifier),
		monitor.WithLogger(logger.WithComponent("monitor").Logger),
	)
	if err != nil {
		logger.Error("config monitor", "error", err)
		return 1
	}
	if err := mon.Start(); err != nil {
		logger.Error("config monitor", "error", err)
		return 1
	}
	defer mon.Stop()

	var focused atomic.Bool
	coordOpts := []coordinator.Option{
		coordinator.WithReloads(mon.Outcomes()),
		coordinator.WithFocus(focused.Load),
		coordinator.WithMetrics(metrics.Default()),
		coordinator.WithNotifier(notifier),
		coordinator.WithLogger(logger.WithComponent("coordinator").Logger),
	}
	if opts.doubleEscape {
		coordOpts = append(coordOpts, coordinator.WithDoubleEscapeExit(coordinator.DefaultEscapeInterval))
	}
	src := input.NewPlatformSource(input.WithLogger(logger.WithComponent("input").Logger))
	coord := coordinator.New(cfg, src, coordOpts...)

	crashes := logging.NewCrashHandler(filepath.Join(config.PlatformLogDir(), "crashes"), version, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	w := new(app.Window)
	w.Option(
		app.Title("keyoverlay"),
		app.Size(unit.Dp(render.WindowWidth(cfg)), unit.Dp(render.WindowHeight(cfg))),
	)

	g.Go(func() error {
		err := crashes.Recover("coordinator", func() error {
			return coord.Run(gctx)
		})
		w.Perform(system.ActionClose)
		return err
	})

	g.Go(func() error {
		return reloadOnHangup(gctx, mon, logger)
	})

	if opts.metricsAddr != "" {
		checker := newHealthChecker(coord)
		g.Go(func() error {
			return serveMetrics(gctx, opts.metricsAddr, checker, logger)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		w.Perform(system.ActionClose)
		return nil
	})

	windowErr := windowLoop(w, coord, &focused)
	stop()

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, coordinator.ErrExitRequested):
	case errors.Is(err, coordinator.ErrCaptureStart):
		args := []any{"error", err}
		if a, ok := src.(input.Availability); ok {
			_, reason := a.Available()
			args = append(args, "reason", reason)
		}
		logger.Error("cannot capture input", args...)
		return 1
	default:
		logger.Error("stopped", "error", err)
		return 1
	}
	if windowErr != nil {
		logger.Error("window", "error", windowErr)
		return 1
	}
	logger.Info("bye")
	return 0
}

func setupLogging(cfg *config.Config, opts options) (*logging.Logger, error) {
	lc := logging.DefaultConfig()

	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	lc.Level = level

	if opts.logJSON {
		lc.Format = logging.FormatJSON
	}
	if cfg.LogToFile {
		lc.Output = "both"
	}

	logger, err := logging.New(lc)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger, nil
}

func newNotifier(logger *logging.Logger) notify.Notifier {
	n, err := notify.NewDBus("keyoverlay")
	if err != nil {
		logger.Debug("desktop notifications disabled", "error", err)
		return notify.Nop{}
	}
	return n
}

func reloadOnHangup(ctx context.Context, mon *monitor.Monitor, logger *logging.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			logger.Info("reload requested by signal")
			mon.Trigger()
		}
	}
}

// newHealthChecker reports the tick loop as critical and the config reload
// state as informational.
func newHealthChecker(coord *coordinator.Coordinator) *health.Checker {
	checker := health.NewChecker()
	checker.RegisterFunc("tick_loop", true, health.TickCheck(coord.LastTick, 3*time.Second))
	checker.RegisterFunc("config_reload", false, health.ReloadCheck(coord.LastReload))
	return checker
}

func serveMetrics(ctx context.Context, addr string, checker *health.Checker, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Default().HTTPHandler())
	mux.Handle("/healthz", checker.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// windowLoop paints the latest snapshot at the configured frame rate until
// the window is closed. focused tracks whether the window has keyboard focus.
func windowLoop(w *app.Window, coord *coordinator.Coordinator, focused *atomic.Bool) error {
	painter := render.NewPainter()
	current := coord.Config()

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.ConfigEvent:
			focused.Store(e.Config.Focused)
		case app.FrameEvent:
			cfg, snap := coord.Frame()
			if cfg != current {
				current = cfg
				w.Option(app.Size(unit.Dp(render.WindowWidth(cfg)), unit.Dp(render.WindowHeight(cfg))))
			}

			gtx := app.NewContext(&ops, e)
			painter.Layout(gtx, cfg, snap)

			fps := max(cfg.FPS, 1)
			gtx.Execute(op.InvalidateCmd{At: gtx.Now.Add(time.Second / time.Duration(fps))})
			e.Frame(gtx.Ops)
		}
	}
}
