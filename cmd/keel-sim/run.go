package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keel-rt/keel/internal/inspect"
	"github.com/keel-rt/keel/internal/kernel"
	"github.com/keel-rt/keel/internal/scenario"
	"github.com/keel-rt/keel/internal/systick"
)

var (
	scenarioPath  string
	watchScenario bool
	debugHTTPAddr string
	debugH3Addr   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the kernel and run a scenario",
	Long: `Boots the kernel on the simulated machine, starts the system tick,
spawns the scenario's workloads and runs them for the configured duration.
The final kernel snapshot is written to stdout as JSON.

With --watch the scenario file is re-run every time it changes, until
interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (YAML); omit for the built-in default")
	runCmd.Flags().BoolVarP(&watchScenario, "watch", "w", false, "re-run when the scenario file changes")
	runCmd.Flags().StringVar(&debugHTTPAddr, "debug-http", "", "serve debug endpoints on this address (e.g. 127.0.0.1:8700)")
	runCmd.Flags().StringVar(&debugH3Addr, "debug-http3", "", "serve debug endpoints over HTTP/3 on this UDP address")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if watchScenario && scenarioPath == "" {
		return errors.New("--watch needs --scenario")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !watchScenario {
		cfg, err := loadScenario(scenarioPath)
		if err != nil {
			return err
		}
		return runOnce(ctx, cfg, logger)
	}
	return watchAndRun(ctx, logger)
}

func loadScenario(path string) (*scenario.Config, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(path)
}

// runOnce executes one full scenario lifecycle: boot, tick, run, report,
// shutdown. The teardown order matters: workloads stop while ticks still
// flow (blocked threads need the timer to wake), then the tick source,
// then the machine.
func runOnce(ctx context.Context, cfg *scenario.Config, logger *zap.Logger) error {
	logger.Info("booting kernel",
		zap.String("scenario", cfg.Name),
		zap.String("version", kernel.Version),
		zap.Duration("tick", cfg.GetTickInterval()),
		zap.Duration("duration", cfg.GetDuration()))

	k := kernel.New(&kernel.Config{
		MainPriority: cfg.MainPriority,
		FaultHandler: func(msg string) {
			logger.Error("kernel fault", zap.String("reason", msg))
		},
	})
	main := k.Boot()

	if debugHTTPAddr != "" {
		shutdown, addr, err := inspect.StartDebugHTTP(k, debugHTTPAddr, logger)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
		logger.Info("debug endpoints up", zap.String("url", "http://"+addr+"/kernel"))
	}
	if debugH3Addr != "" {
		tlsCfg, err := inspect.SelfSignedTLS()
		if err != nil {
			return err
		}
		h3 := inspect.NewHTTP3Server(debugH3Addr, tlsCfg, inspect.NewMux(k))
		addr, err := h3.Start()
		if err != nil {
			return err
		}
		defer h3.Stop()
		logger.Info("debug http3 endpoints up", zap.String("url", "https://"+addr+"/kernel"))
	}

	drv, err := systick.Start(k, cfg.GetTickInterval(), logger)
	if err != nil {
		return err
	}

	g, err := scenario.Spawn(k, main, cfg)
	if err != nil {
		drv.Stop()
		return err
	}

	select {
	case <-time.After(cfg.GetDuration()):
	case <-ctx.Done():
		logger.Info("interrupted, shutting down")
	}

	g.Stop(main)
	snap := k.CaptureFrom(main)
	drv.Stop()

	logger.Info("scenario finished",
		zap.Uint64("rounds", g.Rounds()),
		zap.Uint64("ticks", snap.Ticks),
		zap.Uint64("context_switches", snap.ContextSwitches),
		zap.Uint64("preemptions", snap.Preemptions),
		zap.Uint64("tick_overruns", drv.Overruns()))

	k.Shutdown(main)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// watchAndRun re-runs the scenario on every change to its file, debouncing
// bursts of editor writes.
func watchAndRun(ctx context.Context, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go stale.
	dir := filepath.Dir(scenarioPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target, err := filepath.Abs(scenarioPath)
	if err != nil {
		return err
	}

	run := func() {
		cfg, err := loadScenario(scenarioPath)
		if err != nil {
			logger.Error("scenario rejected", zap.Error(err))
			return
		}
		if err := runOnce(ctx, cfg, logger); err != nil {
			logger.Error("run failed", zap.Error(err))
		}
	}

	run()
	const debounce = 500 * time.Millisecond
	var pending *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(ev.Name)
			if abs != target || !ev.Op.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			logger.Info("scenario changed, re-running", zap.String("path", scenarioPath))
			run()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}
