package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rentalscope/internal/models"
	"rentalscope/internal/reconcile"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewTestDB()
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

func getListing(t *testing.T, db *Database, id string) *models.Listing {
	t.Helper()
	found, err := db.GetListings(context.Background(), []string{id})
	require.NoError(t, err)
	return found[id]
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestClose_Once(t *testing.T) {
	db, err := NewTestDB()
	require.NoError(t, err)
	assert.NoError(t, db.Close())
	assert.NoError(t, db.Close())
}

func TestGetListing_Absent(t *testing.T) {
	db := setupTestDB(t)
	assert.Nil(t, getListing(t, db, "missing"))
}

func TestApplyReconciliation_CreateThenUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	candidate := models.Listing{
		ID:         "42",
		Title:      "Bright 2 bedroom",
		PriceCents: 120000,
		City:       "Halifax",
		Bedrooms:   intPtr(2),
		Amenities:  []string{"Parking", "Laundry"},
	}
	require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(candidate, nil, now)))

	stored := getListing(t, db, "42")
	require.NotNil(t, stored)
	assert.Equal(t, "Halifax", stored.City)
	assert.Equal(t, []string{"Parking", "Laundry"}, stored.Amenities)
	assert.Equal(t, 2, *stored.Bedrooms)

	// unchanged re-import writes no history
	require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(candidate, stored, now)))
	history, err := db.PriceHistory(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, history)

	candidate.PriceCents = 125000
	candidate.City = ""
	stored = getListing(t, db, "42")
	require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(candidate, stored, now.Add(time.Hour))))

	stored = getListing(t, db, "42")
	assert.Equal(t, int64(125000), stored.PriceCents)
	assert.Equal(t, "Halifax", stored.City)

	history, err = db.PriceHistory(ctx, "42")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(125000), history[0].PriceCents)

	all, err := db.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestApplyReconciliation_DuplicateCreate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	result := reconcile.Reconcile(models.Listing{ID: "1"}, nil, time.Now())
	require.NoError(t, db.ApplyReconciliation(ctx, result))

	err := db.ApplyReconciliation(ctx, result)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "1", perr.ListingID)
	assert.Equal(t, "create", perr.Op)
}

func TestUncategorizedAndSetCategories(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	for _, l := range []models.Listing{
		{ID: "a"},
		{ID: "b", Category: models.CategoryBed, CategorySource: models.CategorySourceAI},
		{ID: "c"},
	} {
		require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(l, nil, time.Now())))
	}

	pending, err := db.ListUncategorized(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "c", pending[1].ID)

	err = db.SetCategories(ctx, map[string]string{
		"a": models.CategoryStudio,
		"b": models.CategoryAirbnb,
	}, models.CategorySourceAI)
	require.NoError(t, err)

	a := getListing(t, db, "a")
	assert.Equal(t, models.CategoryStudio, a.Category)
	assert.Equal(t, models.CategorySourceAI, a.CategorySource)

	b := getListing(t, db, "b")
	assert.Equal(t, models.CategoryBed, b.Category)

	pending, err = db.ListUncategorized(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)
}

func TestUpdateColumns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(models.Listing{ID: "a"}, nil, time.Now())))

	require.NoError(t, updateColumns(db.db.WithContext(ctx), &models.Listing{ID: "a", City: "Toronto", Title: "ignored"}, []string{"city"}))
	a := getListing(t, db, "a")
	assert.Equal(t, "Toronto", a.City)
	assert.Empty(t, a.Title)

	err := updateColumns(db.db.WithContext(ctx), &models.Listing{ID: "zzz", City: "Toronto"}, []string{"city"})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	result := reconcile.Reconcile(models.Listing{ID: "zzz", PriceCents: 100}, &models.Listing{ID: "zzz"}, time.Now())
	err = db.ApplyReconciliation(ctx, result)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "update", perr.Op)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestChangedColumns(t *testing.T) {
	assert.Equal(t, []string{"price_cents"}, changedColumns(nil))
	assert.Equal(t,
		[]string{"price_cents", "city", "category", "category_source", "amenities"},
		changedColumns([]string{"city", "price", "category", "amenities"}))
}

func TestApplyReconciliation_UpdateKeepsUntouchedColumns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	candidate := models.Listing{ID: "a", City: "Halifax", PriceCents: 90000}
	require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(candidate, nil, now)))
	stale := getListing(t, db, "a")

	// a sweep labels the listing after the import loaded it
	require.NoError(t, db.SetCategories(ctx, map[string]string{"a": models.CategoryStudio}, models.CategorySourceAI))

	candidate.City = "Dartmouth"
	candidate.PriceCents = 0
	require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(candidate, stale, now)))

	stored := getListing(t, db, "a")
	assert.Equal(t, "Dartmouth", stored.City)
	assert.Equal(t, int64(0), stored.PriceCents)
	assert.Equal(t, models.CategoryStudio, stored.Category)
	assert.Equal(t, models.CategorySourceAI, stored.CategorySource)
}

func TestGetListings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ApplyReconciliation(ctx, reconcile.Reconcile(models.Listing{ID: "a"}, nil, time.Now())))

	found, err := db.GetListings(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, "a")
}

func TestRunSummaries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	latest, err := db.LatestRunSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveRunSummary(ctx, &models.RunSummary{RunID: "r1", Kind: models.RunKindImport, StartedAt: start, Created: 3}))
	require.NoError(t, db.SaveRunSummary(ctx, &models.RunSummary{RunID: "r2", Kind: models.RunKindClassify, StartedAt: start.Add(time.Hour), Classified: 2}))

	latest, err = db.LatestRunSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "r2", latest.RunID)
	assert.Equal(t, 2, latest.Classified)
}
