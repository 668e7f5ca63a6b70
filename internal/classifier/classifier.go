// Package classifier assigns categories through an external text model, one
// request per batch of listings.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"rentalscope/internal/models"
)

// DefaultBatchSize keeps a single prompt well inside model context limits.
const DefaultBatchSize = 50

// Store is the part of the persistence gateway a classification sweep needs.
type Store interface {
	ListUncategorized(ctx context.Context) ([]models.Listing, error)
	SetCategories(ctx context.Context, categories map[string]string, source string) error
}

// Classifier batches listings into prompts and validates the answers.
type Classifier struct {
	oracle     Oracle
	template   *Template
	batchSize  int
	batchDelay time.Duration
	logger     *logrus.Logger

	// sleep waits between batches; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(oracle Oracle, template *Template, batchSize int, batchDelay time.Duration, logger *logrus.Logger) *Classifier {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Classifier{
		oracle:     oracle,
		template:   template,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

func (c *Classifier) BatchSize() int {
	return c.batchSize
}

// ClassifyBatch returns one label per listing id, or an error and no labels.
func (c *Classifier) ClassifyBatch(ctx context.Context, batch []models.Listing) (map[string]string, error) {
	if len(batch) == 0 {
		return map[string]string{}, nil
	}
	if len(batch) > c.batchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit of %d", len(batch), c.batchSize)
	}

	response, err := c.oracle.Complete(ctx, c.template.Render(batch))
	if err != nil {
		return nil, fmt.Errorf("failed to query classifier: %w", err)
	}

	labels, err := ParseResponse(response, len(batch))
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(batch))
	for i, l := range batch {
		out[l.ID] = labels[i]
	}
	return out, nil
}

// Sweep classifies every persisted listing without a category. A failed
// batch is logged and left for the next run; it never stops the sweep.
func (c *Classifier) Sweep(ctx context.Context, store Store, summary *models.RunSummary) error {
	pending, err := store.ListUncategorized(ctx)
	if err != nil {
		return fmt.Errorf("failed to list uncategorized listings: %w", err)
	}
	if len(pending) == 0 {
		c.logger.Info("No uncategorized listings")
		return nil
	}

	batches := Chunk(pending, c.batchSize)
	c.logger.WithFields(logrus.Fields{
		"listings": len(pending),
		"batches":  len(batches),
	}).Info("Starting classification sweep")

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Processed += len(batch)

		log := c.logger.WithFields(logrus.Fields{
			"batch":      i + 1,
			"of":         len(batches),
			"batch_size": len(batch),
		})

		labels, err := c.ClassifyBatch(ctx, batch)
		if err != nil {
			summary.BatchesFailed++
			log.WithError(err).Warn("Classification batch failed, skipping")
			continue
		}
		if err := store.SetCategories(ctx, labels, models.CategorySourceAI); err != nil {
			summary.BatchesFailed++
			summary.Errors++
			log.WithError(err).Error("Failed to store categories, skipping batch")
			continue
		}

		summary.BatchesClassified++
		summary.Classified += len(labels)
		log.Info("Classified batch")

		if i < len(batches)-1 && c.batchDelay > 0 {
			if err := c.sleep(ctx, c.batchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Chunk splits listings into consecutive slices of at most size.
func Chunk(listings []models.Listing, size int) [][]models.Listing {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]models.Listing
	for start := 0; start < len(listings); start += size {
		end := start + size
		if end > len(listings) {
			end = len(listings)
		}
		out = append(out, listings[start:end])
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
