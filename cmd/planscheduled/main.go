// Command planscheduled is a long-running daemon that re-executes plans
// registered through cmd/enginectl on their configured cron schedule
// (spec.md §9 supplemented feature). It is a thin wrapper over
// internal/scheduler and internal/execution; it holds no pipeline logic of
// its own.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/batchpipe/engine/internal/config"
	"github.com/batchpipe/engine/internal/database"
	"github.com/batchpipe/engine/internal/execution"
	"github.com/batchpipe/engine/internal/models"
	"github.com/batchpipe/engine/internal/observability"
	"github.com/batchpipe/engine/internal/repository"
	"github.com/batchpipe/engine/internal/scheduler"
	"github.com/batchpipe/engine/internal/version"

	_ "github.com/batchpipe/engine/internal/pipeline/builtin"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfgFile string
	pflag.StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/batchpipe, $HOME/.batchpipe)")
	pflag.Parse()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

	logger.Info("starting planscheduled", slog.String("version", version.Short()))

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.DB.AutoMigrate(&models.PlanRecord{}, &models.RunRecord{}, &models.StageRunRecord{}); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	planRepo := repository.NewPlanRepository(db.DB)
	runRepo := repository.NewRunRepository(db.DB)

	executor := &execution.PlanExecutor{
		PlanRepo:        planRepo,
		RunRepo:         runRepo,
		SinkConcurrency: cfg.Engine.SinkConcurrency,
		StageTimeout:    cfg.Engine.StageTimeout,
		Logger:          logger,
		Triggered:       "scheduled",
	}

	sched := scheduler.New(planRepo, executor).
		WithLogger(logger).
		WithConfig(scheduler.Config{
			SyncInterval:      cfg.Scheduler.PollInterval,
			CatchupMissedRuns: cfg.Scheduler.CatchupMissedRuns,
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	<-ctx.Done()
	return nil
}
