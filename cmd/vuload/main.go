package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/logging"
	"github.com/torosent/vuload/internal/output"
	"github.com/torosent/vuload/internal/promexport"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/threshold"
	"github.com/torosent/vuload/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// Exit codes.
const (
	exitOK              = 0
	exitError           = 1
	exitThresholdFailed = 2
)

var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := newRootCommand(os.Stdout, os.Stderr)
	cmd.SetArgs(os.Args[1:])
	err := cmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errThresholdsFailed):
		return exitThresholdFailed
	default:
		return exitError
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vuload",
		Short:         "Run a fixed number of virtual users against a target for a fixed duration",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFlags(cmd.Flags(), cmd.Flags().NFlag() == 0)
			if err != nil {
				if errors.Is(err, config.ErrHelpRequested) {
					return cmd.Help()
				}
				return err
			}
			return run(cmd.Context(), cfg, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	config.RegisterFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.NewWithWriter(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	runID := runner.NewRunID()
	provider, err := tracing.Init(ctx, cfg.Tracing, runID)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	factory, wsStats, err := newFactory(cfg, provider.ShouldPropagate())
	if err != nil {
		return err
	}
	factory = runner.Wrap(factory, middlewares(cfg, provider, logger)...)

	sched := runner.New(runner.Options{
		RunID:        runID,
		VirtualUsers: cfg.VirtualUsers,
		Duration:     cfg.Duration,
		SleepBetween: cfg.SleepBetween,
		Rate:         cfg.Rate,
		ArrivalModel: toRunnerArrivalModel(cfg.Arrival.Model),
		Factory:      factory,
		Logger:       logger,
	})

	if cfg.MetricsAddr != "" {
		exporter := promexport.New(sched.RunID(), sched.ActiveVUs)
		sched.Aggregator().AddObserver(exporter)
		if wsStats != nil {
			if err := exporter.AddProtocolCounters("websocket", func() map[string]int64 {
				return wsStats.Snapshot().Counters()
			}); err != nil {
				return fmt.Errorf("metrics: %w", err)
			}
		}
		srv, err := exporter.Start(cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		logger.Info("serving metrics", zap.String("addr", srv.Addr()))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Quiet {
		progress = output.NewProgressReporter(sched, progressInterval, stdout)
		progress.Start()
	}

	logger.Info("starting run",
		zap.String("run_id", sched.RunID()),
		zap.String("protocol", string(cfg.Protocol)),
		zap.String("target", cfg.TargetURL),
		zap.Int("vus", cfg.VirtualUsers),
		zap.Duration("duration", cfg.Duration),
	)
	summary, runErr := sched.Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	if runErr != nil {
		return runErr
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(summary)
	report := output.NewReport(summary, results)
	if wsStats != nil {
		report.ProtocolMetrics = map[string]map[string]int64{
			"websocket": wsStats.Snapshot().Counters(),
		}
	}
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if cfg.SummaryExport != "" {
		if err := output.ExportReport(cfg.SummaryExport, report); err != nil {
			return err
		}
	}

	if !report.Passed {
		return errThresholdsFailed
	}
	return nil
}

func middlewares(cfg *config.Config, provider *tracing.Provider, logger *zap.Logger) []runner.Middleware {
	var mws []runner.Middleware
	if cfg.Tracing.Enabled() {
		mws = append(mws, tracing.Middleware(provider.Tracer(), string(cfg.Protocol), cfg.TargetURL))
	}
	if cfg.LogErrors {
		mws = append(mws, runner.Logging(logger))
	}
	return mws
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}
