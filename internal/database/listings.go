package database

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"rentalscope/internal/models"
	"rentalscope/internal/reconcile"
)

// GetListings loads every listing among ids that exists, keyed by id.
func (d *Database) GetListings(ctx context.Context, ids []string) (map[string]*models.Listing, error) {
	out := make(map[string]*models.Listing, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var listings []models.Listing
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&listings).Error; err != nil {
		return nil, &PersistenceError{Op: "load batch", Err: err}
	}
	for i := range listings {
		out[listings[i].ID] = &listings[i]
	}
	return out, nil
}

// ApplyReconciliation writes the listing and its price history entry, if
// any, in one transaction. Updates only touch the price and the columns the
// merge changed.
func (d *Database) ApplyReconciliation(ctx context.Context, result reconcile.Result) error {
	listing := result.Listing
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch result.Action {
		case reconcile.ActionCreate:
			if err := tx.Create(&listing).Error; err != nil {
				return err
			}
		default:
			if err := updateColumns(tx, &listing, changedColumns(result.Changed)); err != nil {
				return err
			}
		}
		if result.History != nil {
			entry := *result.History
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Op: string(result.Action), ListingID: listing.ID, Err: err}
	}
	return nil
}

// updateColumns writes the given columns of listing, zero values included.
func updateColumns(tx *gorm.DB, listing *models.Listing, columns []string) error {
	res := tx.Model(&models.Listing{}).Where("id = ?", listing.ID).Select(columns).Updates(listing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// changedColumns maps merge field names to columns. The price is always
// written.
func changedColumns(changed []string) []string {
	columns := []string{"price_cents"}
	for _, field := range changed {
		switch field {
		case "price":
		case "category":
			columns = append(columns, "category", "category_source")
		default:
			columns = append(columns, field)
		}
	}
	return columns
}

// ListUncategorized returns listings whose category is empty or absent.
func (d *Database) ListUncategorized(ctx context.Context) ([]models.Listing, error) {
	var listings []models.Listing
	err := d.db.WithContext(ctx).
		Where("category = ? OR category IS NULL", "").
		Order("id").
		Find(&listings).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list uncategorized", Err: err}
	}
	return listings, nil
}

// SetCategories stores labels by listing id in one transaction. Listings that
// already carry a category keep it.
func (d *Database) SetCategories(ctx context.Context, categories map[string]string, source string) error {
	ids := make([]string, 0, len(categories))
	for id := range categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			err := tx.Model(&models.Listing{}).
				Where("id = ? AND (category = ? OR category IS NULL)", id, "").
				Updates(map[string]any{
					"category":        categories[id],
					"category_source": source,
				}).Error
			if err != nil {
				return &PersistenceError{Op: "set category", ListingID: id, Err: err}
			}
		}
		return nil
	})
}

func (d *Database) ListAll(ctx context.Context) ([]models.Listing, error) {
	var listings []models.Listing
	if err := d.db.WithContext(ctx).Order("id").Find(&listings).Error; err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return listings, nil
}

// PriceHistory returns the recorded price changes of a listing, oldest first.
func (d *Database) PriceHistory(ctx context.Context, listingID string) ([]models.PriceHistoryEntry, error) {
	var entries []models.PriceHistoryEntry
	err := d.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("recorded_at, id").
		Find(&entries).Error
	if err != nil {
		return nil, &PersistenceError{Op: "load price history", ListingID: listingID, Err: err}
	}
	return entries, nil
}
