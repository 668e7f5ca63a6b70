package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"rentalscope/internal/models"
	"rentalscope/internal/reconcile"
)

// processBatch reconciles and persists one batch of extracted listings.
// Failures are counted per listing; only cancellation is returned.
func (p *Importer) processBatch(ctx context.Context, batch []models.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}

	var existing map[string]*models.Listing
	err := p.withRetry(ctx, func() error {
		var err error
		existing, err = p.store.GetListings(ctx, ids)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.summary.Errors += len(batch)
		p.logger.WithError(err).WithField("batch_size", len(batch)).Error("Failed to load existing listings, skipping batch")
		return nil
	}
	if existing == nil {
		existing = make(map[string]*models.Listing)
	}

	if p.classifier != nil {
		if err := p.classifyBatch(ctx, batch, existing); err != nil {
			return err
		}
	}

	now := p.now()
	for _, candidate := range batch {
		result := reconcile.Reconcile(candidate, existing[candidate.ID], now)
		if result.History != nil {
			result.History.RunID = p.summary.RunID
		}

		log := p.logger.WithFields(logrus.Fields{
			"run_id":     p.summary.RunID,
			"listing_id": candidate.ID,
			"file":       candidate.SourceFile,
		})

		err := p.withRetry(ctx, func() error {
			return p.store.ApplyReconciliation(ctx, result)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.summary.Errors++
			log.WithError(err).Error("Failed to persist listing")
			continue
		}

		switch result.Action {
		case reconcile.ActionCreate:
			p.summary.Created++
			log.Debug("Created listing")
		default:
			p.summary.Updated++
			if len(result.Changed) > 0 {
				log.WithField("changed", result.Changed).Debug("Updated listing")
			}
		}
		if result.PriceChanged() {
			p.summary.PriceChanges++
			log.WithFields(logrus.Fields{
				"old_price": models.FormatCents(result.PreviousPriceCents),
				"new_price": result.Listing.Price(),
			}).Info("Price changed")
		}

		// a repeated id later in the same batch is an update of this one
		persisted := result.Listing
		existing[candidate.ID] = &persisted
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":     p.summary.RunID,
		"batch_size": len(batch),
	}).Info("Processed batch")
	return nil
}

// classifyBatch labels the candidates whose persisted category is still
// empty. A failed request leaves the batch unlabelled.
func (p *Importer) classifyBatch(ctx context.Context, batch []models.Listing, existing map[string]*models.Listing) error {
	var pending []int
	for i := range batch {
		if prev := existing[batch[i].ID]; prev == nil || prev.Category == "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if p.classifiedPrev && p.config.Classifier.BatchDelay > 0 {
		if err := p.sleep(ctx, p.config.Classifier.BatchDelay); err != nil {
			return err
		}
	}
	p.classifiedPrev = false

	listings := make([]models.Listing, len(pending))
	for j, i := range pending {
		listings[j] = batch[i]
	}

	labels, err := p.classifier.ClassifyBatch(ctx, listings)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.summary.BatchesFailed++
		p.logger.WithError(err).WithFields(logrus.Fields{
			"run_id":     p.summary.RunID,
			"batch_size": len(listings),
		}).Warn("Classification batch failed, importing without categories")
		return nil
	}

	for _, i := range pending {
		if label, ok := labels[batch[i].ID]; ok {
			batch[i].Category = label
			batch[i].CategorySource = models.CategorySourceAI
		}
	}
	p.summary.BatchesClassified++
	p.summary.Classified += len(labels)
	p.classifiedPrev = true
	return nil
}

// withRetry runs op up to MaxRetries+1 times, waiting RetryDelay seconds
// between attempts.
func (p *Importer) withRetry(ctx context.Context, op func() error) error {
	maxRetries := p.config.BatchProcessing.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying, attempt %d of %d", attempt, maxRetries)
			if err := p.sleep(ctx, time.Duration(p.config.BatchProcessing.RetryDelay)*time.Second); err != nil {
				return err
			}
		}

		if err = op(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", maxRetries+1, err)
}
