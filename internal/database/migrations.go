package database

import (
	"fmt"

	"gorm.io/gorm"

	"rentalscope/internal/models"
)

// MigrateSchema creates or updates the listing, price history and run tables.
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Listing{},
		&models.PriceHistoryEntry{},
		&models.RunSummary{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Classification sweeps filter on this column
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_listings_uncategorized ON listings(id) WHERE category = '' OR category IS NULL`).Error; err != nil {
		return fmt.Errorf("failed to create uncategorized index: %w", err)
	}
	return nil
}
