package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/batchpipe/engine/internal/database"
	"github.com/batchpipe/engine/internal/execution"
	"github.com/batchpipe/engine/internal/models"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/plugin"
	"github.com/batchpipe/engine/internal/repository"
)

var runRegisterAs string

var runCmd = &cobra.Command{
	Use:   "run <plan-file>",
	Short: "Compile and execute a plan document",
	Long: `run reads a YAML plan document, compiles it into a PipelinePlan, and
drives it through the engine (spec.md §4.1). The outcome — success or the
stage it failed under, duration, and per-stage timing — is recorded to run
history.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRegisterAs, "register-as", "", "also register this plan document under the given name for cmd/planscheduled")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading plan file: %w", err)
	}

	if _, err := plan.Load(data, plugin.Factory); err != nil {
		return fmt.Errorf("compiling plan: %w", err)
	}

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

	ctx := context.Background()
	record, err := resolveOrRegisterPlan(ctx, planRepo, args[0], string(data))
	if err != nil {
		return err
	}

	executor := &execution.PlanExecutor{
		PlanRepo:        planRepo,
		RunRepo:         runRepo,
		SinkConcurrency: cfg.Engine.SinkConcurrency,
		StageTimeout:    cfg.Engine.StageTimeout,
		Logger:          logger,
		Triggered:       "manual",
	}

	if err := executor.ExecutePlan(ctx, record); err != nil {
		return err
	}

	fmt.Printf("plan %q completed\n", record.Name)
	return nil
}

func resolveOrRegisterPlan(ctx context.Context, repo repository.PlanRepository, path, definition string) (*models.PlanRecord, error) {
	name := runRegisterAs
	if name == "" {
		name = path
	}

	existing, err := repo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("looking up plan %q: %w", name, err)
	}
	if existing != nil {
		existing.Definition = definition
		if err := repo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("updating plan %q: %w", name, err)
		}
		return existing, nil
	}

	record := &models.PlanRecord{Name: name, Definition: definition}
	if err := repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("registering plan %q: %w", name, err)
	}
	return record, nil
}
