package database

import (
	"context"

	"rentalscope/internal/models"
)

func (d *Database) SaveRunSummary(ctx context.Context, summary *models.RunSummary) error {
	if err := d.db.WithContext(ctx).Create(summary).Error; err != nil {
		return &PersistenceError{Op: "save run summary", Err: err}
	}
	return nil
}

// LatestRunSummary returns the most recently started run, or nil if none.
func (d *Database) LatestRunSummary(ctx context.Context) (*models.RunSummary, error) {
	var summary models.RunSummary
	err := d.db.WithContext(ctx).Order("started_at desc, id desc").First(&summary).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load run summary", Err: err}
	}
	return &summary, nil
}
