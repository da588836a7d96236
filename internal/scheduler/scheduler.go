// Package scheduler provides cron-driven re-execution of registered plans
// for cmd/planscheduled. It uses robfig/cron as the timing engine and
// periodically syncs schedules from the PlanRepository to pick up changes
// made through cmd/enginectl.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/batchpipe/engine/internal/models"
	"github.com/batchpipe/engine/internal/repository"
)

// NormalizeCronExpression normalizes a cron expression to 6-field format.
// It accepts both 6-field (default) and 7-field (legacy with year) formats.
//
// Supported formats:
//   - 6 fields: sec min hour dom month dow (passed through as-is)
//   - 7 fields: sec min hour dom month dow year (year stripped after validation)
//
// The year field, if present, must be "*" or a valid year/range (e.g. "2024",
// "2024-2030", "*").
func NormalizeCronExpression(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty cron expression")
	}

	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 6:
		return expr, nil
	case 7:
		yearField := fields[6]
		if !isValidYearField(yearField) {
			return "", fmt.Errorf("invalid year field %q: must be * or a valid year/range", yearField)
		}
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("invalid cron expression: expected 6 or 7 fields, got %d", len(fields))
	}
}

func isValidYearField(field string) bool {
	if field == "*" {
		return true
	}
	for _, r := range field {
		if !((r >= '0' && r <= '9') || r == ',' || r == '-' || r == '/' || r == '*') {
			return false
		}
	}
	return len(field) > 0
}

// Executor runs one plan to completion and records the outcome.
// execution.PlanExecutor implements this against the engine and
// repositories; the scheduler
// itself stays ignorant of the engine package so it can be tested without
// driving a real pipeline.
type Executor interface {
	ExecutePlan(ctx context.Context, plan *models.PlanRecord) error
}

// Config holds configuration for the scheduler.
type Config struct {
	// SyncInterval is how often to reload schedules from the repository.
	SyncInterval time.Duration
	// CatchupMissedRuns schedules an immediate run for any plan whose next
	// scheduled fire time after LastRunAt has already passed, e.g. after
	// downtime.
	CatchupMissedRuns bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval:      time.Minute,
		CatchupMissedRuns: true,
	}
}

// Scheduler re-executes registered plans on their cron schedule.
type Scheduler struct {
	mu sync.RWMutex

	planRepo repository.PlanRepository
	executor Executor
	logger   *slog.Logger

	parser        cron.Parser
	cronScheduler *cron.Cron
	entryMap      map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	syncInterval      time.Duration
	catchupMissedRuns bool
}

// New creates a new scheduler.
func New(planRepo repository.PlanRepository, executor Executor) *Scheduler {
	cfg := DefaultConfig()

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronScheduler := cron.New(cron.WithParser(parser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))

	return &Scheduler{
		planRepo:          planRepo,
		executor:          executor,
		logger:            slog.Default(),
		parser:            parser,
		cronScheduler:     cronScheduler,
		entryMap:          make(map[string]cron.EntryID),
		syncInterval:      cfg.SyncInterval,
		catchupMissedRuns: cfg.CatchupMissedRuns,
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithConfig applies configuration to the scheduler.
func (s *Scheduler) WithConfig(cfg Config) *Scheduler {
	if cfg.SyncInterval > 0 {
		s.syncInterval = cfg.SyncInterval
	}
	s.catchupMissedRuns = cfg.CatchupMissedRuns
	return s
}

// Start begins the scheduler's background operations: it loads the initial
// schedule from the repository, starts the cron timer, and launches the
// sync loop that picks up schedule changes.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.loadSchedules(s.ctx); err != nil {
		s.logger.Error("failed to load initial schedules", slog.Any("error", err))
	}

	if s.catchupMissedRuns {
		if caught, err := s.catchupMissed(s.ctx); err != nil {
			s.logger.Error("failed to catch up missed runs", slog.Any("error", err))
		} else if caught > 0 {
			s.logger.Info("scheduled catch-up runs", slog.Int("count", caught))
		}
	}

	s.cronScheduler.Start()

	s.wg.Add(1)
	go s.syncLoop()

	s.mu.RLock()
	entryCount := len(s.entryMap)
	s.mu.RUnlock()

	s.logger.Info("scheduler started",
		slog.Duration("sync_interval", s.syncInterval),
		slog.Int("initial_entries", entryCount))

	return nil
}

// Stop stops the scheduler, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cronScheduler.Stop()
	s.mu.Unlock()

	<-stopCtx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.loadSchedules(s.ctx); err != nil {
				s.logger.Error("failed to sync schedules", slog.Any("error", err))
			}
		}
	}
}

// loadSchedules reloads every enabled plan with a cron schedule and
// reconciles the cron timer's entries against it.
func (s *Scheduler) loadSchedules(ctx context.Context) error {
	plans, err := s.planRepo.GetScheduled(ctx)
	if err != nil {
		return fmt.Errorf("getting scheduled plans: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(plans))
	for _, plan := range plans {
		key := plan.ID.String()
		seen[key] = true

		if err := s.upsertScheduleEntry(plan); err != nil {
			s.logger.Error("failed to schedule plan",
				slog.String("plan", plan.Name),
				slog.String("cron", plan.CronSchedule),
				slog.Any("error", err))
		}
	}

	for key, entryID := range s.entryMap {
		if !seen[key] {
			s.cronScheduler.Remove(entryID)
			delete(s.entryMap, key)
			s.logger.Debug("removed schedule", slog.String("plan_id", key))
		}
	}

	return nil
}

// upsertScheduleEntry adds or replaces the cron entry for plan. Callers must
// hold s.mu.
func (s *Scheduler) upsertScheduleEntry(plan *models.PlanRecord) error {
	key := plan.ID.String()

	normalized, err := NormalizeCronExpression(plan.CronSchedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	schedule, err := s.parser.Parse(normalized)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if existingID, exists := s.entryMap[key]; exists {
		entry := s.cronScheduler.Entry(existingID)
		if entry.Valid() && entry.Schedule.Next(time.Now()).Equal(schedule.Next(time.Now())) {
			return nil
		}
		s.cronScheduler.Remove(existingID)
		delete(s.entryMap, key)
	}

	planID := plan.ID
	planName := plan.Name
	entryID, err := s.cronScheduler.AddFunc(normalized, func() { s.fire(planID, planName) })
	if err != nil {
		return fmt.Errorf("adding cron entry: %w", err)
	}

	s.entryMap[key] = entryID
	s.logger.Debug("scheduled plan",
		slog.String("plan", planName),
		slog.String("cron", plan.CronSchedule),
		slog.Time("next_run", schedule.Next(time.Now())))

	return nil
}

// fire runs planID through the executor when its cron entry triggers.
func (s *Scheduler) fire(planID models.ULID, planName string) {
	ctx := context.Background()

	s.logger.Info("cron triggered", slog.String("plan", planName))

	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		s.logger.Error("failed to reload plan for scheduled run", slog.String("plan", planName), slog.Any("error", err))
		return
	}
	if plan == nil || !plan.IsEnabled() {
		s.logger.Debug("skipping scheduled run, plan disabled or deleted", slog.String("plan", planName))
		return
	}

	if err := s.executor.ExecutePlan(ctx, plan); err != nil {
		s.logger.Error("scheduled run failed", slog.String("plan", planName), slog.Any("error", err))
	}
}

// catchupMissed schedules an immediate run for every enabled plan whose next
// fire time after LastRunAt has already passed, e.g. after downtime.
func (s *Scheduler) catchupMissed(ctx context.Context) (int, error) {
	plans, err := s.planRepo.GetScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting scheduled plans: %w", err)
	}

	caught := 0
	now := time.Now()
	for _, plan := range plans {
		if s.shouldCatchup(plan.CronSchedule, plan.LastRunAt, now) {
			s.logger.Debug("plan missed scheduled run", slog.String("plan", plan.Name), slog.Any("last_run", plan.LastRunAt))
			go s.fire(plan.ID, plan.Name)
			caught++
		}
	}
	return caught, nil
}

// shouldCatchup reports whether the next scheduled fire time after
// lastRun has already passed.
func (s *Scheduler) shouldCatchup(cronExpr string, lastRun *models.Time, now time.Time) bool {
	if lastRun == nil {
		return true
	}

	normalized, err := NormalizeCronExpression(cronExpr)
	if err != nil {
		return false
	}
	schedule, err := s.parser.Parse(normalized)
	if err != nil {
		return false
	}

	return schedule.Next(*lastRun).Before(now)
}

// ValidateCron validates a cron expression, accepting both 6-field and
// legacy 7-field (with year) formats.
func ValidateCron(expr string) error {
	normalized, err := NormalizeCronExpression(expr)
	if err != nil {
		return err
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err = parser.Parse(normalized)
	return err
}

// GetEntryCount returns the number of scheduled entries.
func (s *Scheduler) GetEntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entryMap)
}
