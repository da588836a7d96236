package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/batchpipe/engine/internal/database"
	"github.com/batchpipe/engine/internal/models"
	"github.com/batchpipe/engine/internal/repository"
	"github.com/batchpipe/engine/pkg/duration"
)

var (
	historyOffset int
	historyLimit  int
	historyStages bool
)

var historyCmd = &cobra.Command{
	Use:   "history <plan-name>",
	Short: "List recorded runs for a registered plan",
	Long: `history lists runs recorded for a plan registered via "run --register-as"
or cmd/planscheduled, most recent first. Pass --stages to also print each
run's per-stage timing.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "number of runs to skip")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyStages, "stages", false, "also print per-stage run records")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	planRepo := repository.NewPlanRepository(db.DB)
	runRepo := repository.NewRunRepository(db.DB)

	ctx := context.Background()
	plan, err := planRepo.GetByName(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up plan %q: %w", args[0], err)
	}
	if plan == nil {
		return fmt.Errorf("no plan registered as %q", args[0])
	}

	runs, total, err := runRepo.GetByPlanID(ctx, plan.ID, historyOffset, historyLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	fmt.Printf("plan %q: %d run(s) total\n", plan.Name, total)
	for _, run := range runs {
		printRun(run)

		if !historyStages {
			continue
		}
		stageRuns, err := runRepo.GetStageRuns(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("listing stage runs for %s: %w", run.ID, err)
		}
		for _, sr := range stageRuns {
			printStageRun(sr)
		}
	}

	return nil
}

func printRun(run *models.RunRecord) {
	fmt.Printf("  %s  %-10s  %-8s  %8s", run.ID, run.Status, run.Triggered, formatMillis(run.DurationMs))
	if run.Status == models.RunStatusFailed {
		fmt.Printf("  failed at %s: %s", run.FailedStage, run.LastError)
	}
	fmt.Println()
}

func printStageRun(sr *models.StageRunRecord) {
	fmt.Printf("      %-24s %-16s %-10s %8s", sr.StageName, sr.Kind, sr.Status, formatMillis(sr.DurationMs))
	if sr.Error != "" {
		fmt.Printf("  %s", sr.Error)
	}
	fmt.Println()
}

func formatMillis(ms int64) string {
	return duration.Format(time.Duration(ms) * time.Millisecond)
}
