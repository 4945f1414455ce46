// Command vpo-worker is the worker process entrypoint (spec.md §4.J). It
// is deliberately not a policy-authoring CLI — loading YAML/TOML policy
// documents, validating them, and enqueueing jobs is an external
// collaborator's job per spec.md §1. This binary only ever does one
// thing: open the store, recover/drain the job queue under its
// configured stop conditions, and exit.
//
// Grounded on the teacher's cmd/nerd/main.go for cobra root-command
// wiring (PersistentPreRunE initializing zap and internal/logging,
// PersistentPostRun tearing both down).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/storage"
	"vpo/internal/tooladapter"
	"vpo/internal/worker"
)

var (
	configPath string
	verbose    bool
	maxFiles   int
	maxDur     string
	endBy      string

	zlog *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vpo-worker",
	Short: "vpo's long-lived job queue worker",
	Long: `vpo-worker drains the video policy orchestrator's job queue: it
claims one job at a time, runs it (scan, process, transcode), and exits
when the queue empties or a configured stop condition is reached.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		zlog, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			zlog.Sugar().Debugf(format, args...)
		})); err != nil {
			zlog.Warn("failed to set GOMAXPROCS from cgroup limits", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zlog != nil {
			_ = zlog.Sync()
		}
		logging.CloseAll()
	},
	RunE: runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to vpo config file (default: <data_dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().IntVar(&maxFiles, "max-files", 0, "stop after processing this many files (0 = unlimited)")
	rootCmd.Flags().StringVar(&maxDur, "max-duration", "", "stop after this much wall-clock time has elapsed, e.g. 2h (empty = unlimited)")
	rootCmd.Flags().StringVar(&endBy, "end-by", "", "stop at this local wall-clock time, HH:MM (empty = unlimited)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfgPath := configPath
	cfg := config.DefaultConfig()
	if cfgPath == "" {
		cfgPath = cfg.DataDir + "/config.yaml"
	}
	loaded, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	if maxFiles > 0 {
		cfg.Worker.MaxFiles = maxFiles
	}
	if maxDur != "" {
		cfg.Worker.MaxDuration = maxDur
	}
	if endBy != "" {
		cfg.Worker.EndBy = endBy
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := cfg.Logging.Level
	if verbose {
		logLevel = "debug"
	}
	if err := logging.Initialize(cfg.DataDir, logLevel, cfg.Logging.JSONFormat); err != nil {
		zlog.Warn("failed to initialize file logging", zap.Error(err))
	}

	engine, err := storage.Open(cfg.DBPath(), cfg.GetBusyTimeout())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			zlog.Warn("error closing storage engine", zap.Error(err))
		}
	}()

	adapters := tooladapter.NewAdapters()
	discoverCtx, discoverCancel := context.WithTimeout(context.Background(), 30*time.Second)
	report := adapters.DiscoverCapabilities(discoverCtx)
	discoverCancel()
	zlog.Info("tool capability discovery complete",
		zap.Bool("introspector", report.IntrospectorAvailable),
		zap.Bool("metadata_editor", report.MetadataEditorAvailable),
		zap.Bool("matroska_remux", report.MatroskaRemuxAvailable),
		zap.Bool("other_remux", report.OtherRemuxAvailable),
		zap.Bool("transcoder", report.TranscoderAvailable),
		zap.Bool("hardware_encoding", report.Capabilities.HasHardware),
	)

	endByTime, err := worker.ParseEndBy(cfg.Worker.EndBy, time.Now())
	if err != nil {
		return fmt.Errorf("invalid worker.end_by: %w", err)
	}
	stop := worker.StopConditions{
		MaxFiles:    cfg.Worker.MaxFiles,
		MaxDuration: cfg.GetMaxDuration(),
		EndBy:       endByTime,
	}

	rt := worker.New(cfg, engine, adapters, stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		zlog.Info("received signal, requesting graceful shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	defer signal.Stop(sigCh)

	zlog.Info("vpo-worker starting",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("max_files", cfg.Worker.MaxFiles),
		zap.String("max_duration", cfg.Worker.MaxDuration),
		zap.String("end_by", cfg.Worker.EndBy),
	)

	if err := rt.Run(ctx); err != nil {
		return fmt.Errorf("worker run: %w", err)
	}
	zlog.Info("vpo-worker exiting")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
