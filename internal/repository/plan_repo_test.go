package repository

import (
	"context"
	"testing"
	"time"

	"github.com/batchpipe/engine/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPlanTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.PlanRecord{})
	require.NoError(t, err)

	return db
}

func TestPlanRepo_Create(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	plan := &models.PlanRecord{
		Name:       "daily-ingest",
		Definition: `{"stages":[]}`,
	}

	err := repo.Create(ctx, plan)
	require.NoError(t, err)
	assert.False(t, plan.ID.IsZero())

	found, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, plan.Name, found.Name)
	assert.True(t, found.IsEnabled())
}

func TestPlanRepo_Create_Validates(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	err := repo.Create(ctx, &models.PlanRecord{Name: "missing-definition"})
	require.Error(t, err)
}

func TestPlanRepo_GetByName(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	plan := &models.PlanRecord{Name: "weekly-report", Definition: "{}"}
	require.NoError(t, repo.Create(ctx, plan))

	t.Run("existing plan", func(t *testing.T) {
		found, err := repo.GetByName(ctx, "weekly-report")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, plan.ID, found.ID)
	})

	t.Run("unknown plan", func(t *testing.T) {
		found, err := repo.GetByName(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestPlanRepo_GetScheduled(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	disabled := models.BoolPtr(false)
	plans := []*models.PlanRecord{
		{Name: "a", Definition: "{}", CronSchedule: "0 * * * *"},
		{Name: "b", Definition: "{}", CronSchedule: ""},
		{Name: "c", Definition: "{}", CronSchedule: "0 0 * * *", Enabled: disabled},
	}
	for _, p := range plans {
		require.NoError(t, repo.Create(ctx, p))
	}

	scheduled, err := repo.GetScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "a", scheduled[0].Name)
}

func TestPlanRepo_Update(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	plan := &models.PlanRecord{Name: "original", Definition: "{}"}
	require.NoError(t, repo.Create(ctx, plan))

	plan.Description = "updated description"
	require.NoError(t, repo.Update(ctx, plan))

	found, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated description", found.Description)
}

func TestPlanRepo_Delete(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	plan := &models.PlanRecord{Name: "to-delete", Definition: "{}"}
	require.NoError(t, repo.Create(ctx, plan))

	require.NoError(t, repo.Delete(ctx, plan.ID))

	found, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPlanRepo_MarkRun(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	plan := &models.PlanRecord{Name: "tracked", Definition: "{}"}
	require.NoError(t, repo.Create(ctx, plan))
	assert.Nil(t, plan.LastRunAt)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, repo.MarkRun(ctx, plan.ID, at))

	found, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastRunAt)
	assert.WithinDuration(t, at, *found.LastRunAt, time.Second)
}

func TestPlanRepo_GetAll(t *testing.T) {
	db := setupPlanTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	names := []string{"zeta", "alpha", "mu"}
	for _, name := range names {
		require.NoError(t, repo.Create(ctx, &models.PlanRecord{Name: name, Definition: "{}"}))
	}

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "mu", all[1].Name)
	assert.Equal(t, "zeta", all[2].Name)
}
