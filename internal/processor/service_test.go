package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalscope/config"
	"rentalscope/internal/models"
	"rentalscope/internal/reconcile"
)

func TestService_ImportRecordsSummary(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.json", rawListing("1", "Halifax", "1200", "Cozy studio"))

	cfg := testConfig()
	cfg.Import.DataDir = dir
	svc := NewService(db, cfg, nil, quietLogger())

	summary, err := svc.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)

	latest, err := svc.LatestRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, summary.RunID, latest.RunID)
	assert.Equal(t, 1, latest.Created)
}

func TestService_RequiresOracle(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	svc := NewService(db, cfg, nil, quietLogger())

	_, err := svc.Classify(context.Background())
	assert.True(t, errors.Is(err, config.ErrMissingAPIKey))

	cfg.Import.ClassifyOnImport = true
	_, err = svc.Import(context.Background())
	assert.True(t, errors.Is(err, config.ErrMissingAPIKey))
}

func TestService_Busy(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testConfig(), nil, quietLogger())

	svc.mu.Lock()
	_, err := svc.Categorize(context.Background())
	svc.mu.Unlock()
	assert.ErrorIs(t, err, ErrBusy)
}

func TestService_Categorize(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	two := 2
	for _, l := range []models.Listing{
		{ID: "studio", Description: "Cozy studio apartment downtown"},
		{ID: "flat", Description: "Spacious 2 bedroom with parking", Bedrooms: &two},
		{ID: "vague", Description: "Call for details"},
		{ID: "done", Description: "Cozy studio", Category: models.CategoryBed, CategorySource: models.CategorySourceAI},
	} {
		require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(l, nil, l.CreatedAt)))
	}

	svc := NewService(db, testConfig(), nil, quietLogger())
	summary, err := svc.Categorize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Classified)
	assert.Equal(t, 1, summary.Skipped)

	flat := getListing(t, db, "flat")
	assert.Equal(t, "2bdr apartment", flat.Category)
	assert.Equal(t, models.CategorySourceHeuristic, flat.CategorySource)

	done := getListing(t, db, "done")
	assert.Equal(t, models.CategoryBed, done.Category)

	pending, err := db.ListUncategorized(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "vague", pending[0].ID)
}
