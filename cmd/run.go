package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Jester6136/google-lens-crawl/internal/api"
	"github.com/Jester6136/google-lens-crawl/internal/clock/system"
	"github.com/Jester6136/google-lens-crawl/internal/config"
	"github.com/Jester6136/google-lens-crawl/internal/dispatcher"
	"github.com/Jester6136/google-lens-crawl/internal/input"
	"github.com/Jester6136/google-lens-crawl/internal/lens"
	"github.com/Jester6136/google-lens-crawl/internal/logging"
	"github.com/Jester6136/google-lens-crawl/internal/probe"
	"github.com/Jester6136/google-lens-crawl/internal/progress"
	"github.com/Jester6136/google-lens-crawl/internal/progress/sinks"
	"github.com/Jester6136/google-lens-crawl/internal/scraper"
	"github.com/Jester6136/google-lens-crawl/internal/session"
	"github.com/Jester6136/google-lens-crawl/internal/sink"
	"github.com/Jester6136/google-lens-crawl/internal/worker"
)

type runFlags struct {
	concurrency int
	maxRetries  int
	failures    string
}

// newRunCmd creates the 'run' subcommand, which processes one batch of
// tasks end to end.
func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <tasks.json> <output.csv>",
		Short: "Process a batch of image URLs through Google Lens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], args[1], flags)
		},
	}
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "worker pool size (overrides config)")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", -1, "retries per task after the first attempt (overrides config)")
	cmd.Flags().StringVar(&flags.failures, "failures", "", "path for the failed-subset JSON (default <output>.failed.json)")
	return cmd
}

func runBatch(cmd *cobra.Command, tasksPath, outputPath string, flags *runFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Workers.Concurrency = flags.concurrency
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Retry.MaxRetries = flags.maxRetries
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	failuresPath := flags.failures
	if failuresPath == "" {
		failuresPath = strings.TrimSuffix(outputPath, ".csv") + ".failed.json"
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks, err := input.Load(tasksPath)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.Warn("no tasks in input; writing empty csv", zap.String("path", tasksPath))
		return sink.NewCSV(outputPath, logger).WriteRows(nil)
	}

	runID := uuid.NewString()
	logger.Info("starting batch",
		zap.String("run_id", runID),
		zap.Int("tasks", len(tasks)),
		zap.Int("concurrency", cfg.Workers.Concurrency),
		zap.Int("max_retries", cfg.Retry.MaxRetries),
	)

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return err
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger.Named("progress")), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	if cfg.Server.Enabled {
		ops := api.NewServer(cfg.Server.Addr, registry, logger.Named("ops"))
		ops.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ops.Shutdown(shutdownCtx); err != nil {
				logger.Warn("ops server shutdown failed", zap.Error(err))
			}
		}()
	}

	provider, err := session.NewProvider(session.Config{
		UserAgent:      cfg.Lens.UserAgent,
		Headless:       cfg.Browser.Headless,
		NavTimeout:     cfg.NavTimeout(),
		InitRetries:    cfg.Browser.InitRetries,
		InitRetryDelay: cfg.InitRetryDelay(),
		QPS:            cfg.Lens.QPS,
	}, logger.Named("session"))
	if err != nil {
		return fmt.Errorf("init session provider: %w", err)
	}
	defer provider.Close()

	lensScraper := scraper.New(scraper.Config{
		Endpoint:   cfg.Lens.Endpoint,
		MaxResults: cfg.Lens.MaxResults,
	}, logger.Named("scraper"))

	var prober lens.Prober
	if cfg.Probe.Enabled {
		prober = probe.New(probe.Config{
			UserAgent: cfg.Lens.UserAgent,
			Timeout:   cfg.ProbeTimeout(),
		}, logger.Named("probe"))
	}

	policy := lens.NewExponentialBackoff(cfg.Retry.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax())
	clk := system.New()

	hub.Emit(progress.Event{RunID: runID, TS: clk.Now(), Stage: progress.StageRunStart})
	start := clk.Now()

	workers := make([]*worker.Worker, cfg.Workers.Concurrency)
	for i := range workers {
		workers[i] = worker.New(provider, lensScraper, prober, policy, clk, hub, runID, logger.Named("worker"))
	}
	outcomes := dispatcher.New(workers, logger.Named("dispatcher")).Run(ctx, tasks)

	summary := lens.Summarize(outcomes)
	hub.Emit(progress.Event{
		RunID: runID,
		TS:    clk.Now(),
		Stage: progress.StageRunDone,
		Rows:  summary.Rows,
		Dur:   clk.Now().Sub(start),
	})

	var rows []lens.ResultRow
	var failures []lens.FailureRecord
	for _, o := range outcomes {
		if o.Failed() {
			failures = append(failures, *o.Failure)
			continue
		}
		rows = append(rows, o.Rows...)
	}

	if err := sink.NewCSV(outputPath, logger).WriteRows(rows); err != nil {
		return err
	}
	if err := sink.NewFailures(failuresPath, logger).WriteFailures(failures); err != nil {
		return err
	}

	logger.Info("batch finished",
		zap.String("run_id", runID),
		zap.Int("tasks", summary.Tasks),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("rows", summary.Rows),
		zap.Duration("elapsed", clk.Now().Sub(start)),
	)
	if ctx.Err() != nil {
		return fmt.Errorf("batch interrupted: %w", ctx.Err())
	}
	return nil
}
