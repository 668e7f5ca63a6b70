package processor

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rentalscope/config"
	"rentalscope/internal/classifier"
	"rentalscope/internal/extract"
	"rentalscope/internal/models"
	"rentalscope/internal/queue"
	"rentalscope/internal/reconcile"
)

// Store is the part of the persistence gateway an import needs.
type Store interface {
	GetListings(ctx context.Context, ids []string) (map[string]*models.Listing, error)
	ApplyReconciliation(ctx context.Context, result reconcile.Result) error
}

// BatchClassifier labels one batch of listings, all or nothing.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, batch []models.Listing) (map[string]string, error)
}

// Importer walks the source tree and merges every document into the store.
// Files, documents and batches are handled one at a time.
type Importer struct {
	store      Store
	extractor  *extract.Extractor
	classifier BatchClassifier
	config     *config.Config
	logger     *logrus.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	summary        *models.RunSummary
	classifiedPrev bool
}

// NewImporter creates an importer. classifier may be nil, in which case
// categories are left to a later classification sweep.
func NewImporter(store Store, extractor *extract.Extractor, classifier BatchClassifier, cfg *config.Config, logger *logrus.Logger) *Importer {
	if extractor == nil {
		extractor = extract.NewExtractor(cfg.Import.HeuristicCategory)
	}
	return &Importer{
		store:      store,
		extractor:  extractor,
		classifier: classifier,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Run imports every source file under root. Record level failures are
// counted in the summary; the error is only set when the run itself failed.
func (p *Importer) Run(ctx context.Context, root string) (*models.RunSummary, error) {
	p.summary = &models.RunSummary{
		RunID:     uuid.NewString(),
		Kind:      models.RunKindImport,
		StartedAt: p.now().UTC(),
	}
	p.classifiedPrev = false
	summary := p.summary

	log := p.logger.WithField("run_id", summary.RunID)

	files, err := ScanSources(root, p.config.Import.SourceExt)
	if err != nil {
		return p.finish(summary, err)
	}
	summary.Files = len(files)
	log.WithFields(logrus.Fields{"root": root, "files": len(files)}).Info("Starting import")

	batcher := queue.NewBatcher(p.batchSize(), p.processBatch, p.logger)

	for _, path := range files {
		if err := p.importFile(ctx, batcher, root, path); err != nil {
			return p.finish(summary, err)
		}
		log.WithFields(logrus.Fields{
			"batches": batcher.Batches(),
			"pending": batcher.Len(),
		}).Debug("File queued")
	}
	if err := batcher.Close(ctx); err != nil {
		return p.finish(summary, err)
	}
	log.WithField("batches", batcher.Batches()).Debug("All batches processed")

	return p.finish(summary, nil)
}

func (p *Importer) importFile(ctx context.Context, batcher *queue.Batcher, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	log := p.logger.WithFields(logrus.Fields{"run_id": p.summary.RunID, "file": rel})

	docs, err := ReadDocuments(path)
	if err != nil {
		p.summary.Errors++
		log.WithError(err).Error("Failed to read source file")
		return nil
	}
	log.WithField("documents", len(docs)).Info("Importing file")

	for i, raw := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.summary.Processed++

		doc, err := extract.ParseDocument(raw)
		if err != nil {
			p.summary.Errors++
			log.WithError(err).WithField("index", i).Warn("Skipping malformed document")
			continue
		}
		listing, err := p.extractor.Extract(doc)
		if errors.Is(err, extract.ErrMissingID) {
			p.summary.Skipped++
			log.WithField("index", i).Debug("Skipping document without id")
			continue
		}
		if err != nil {
			p.summary.Errors++
			log.WithError(err).WithField("index", i).Warn("Skipping malformed document")
			continue
		}

		listing.SourceFile = filepath.ToSlash(rel)
		if err := batcher.Push(ctx, *listing); err != nil {
			return err
		}
	}
	return nil
}

func (p *Importer) batchSize() int {
	size := p.config.BatchProcessing.MaxBatchSize
	if size <= 0 || size > classifier.DefaultBatchSize {
		size = classifier.DefaultBatchSize
	}
	if c, ok := p.classifier.(interface{ BatchSize() int }); ok && c.BatchSize() < size {
		size = c.BatchSize()
	}
	return size
}

func (p *Importer) finish(summary *models.RunSummary, err error) (*models.RunSummary, error) {
	summary.FinishedAt = p.now().UTC()
	summary.Failed = err != nil

	fields := logrus.Fields{
		"run_id":        summary.RunID,
		"files":         summary.Files,
		"processed":     summary.Processed,
		"created":       summary.Created,
		"updated":       summary.Updated,
		"skipped":       summary.Skipped,
		"errors":        summary.Errors,
		"price_changes": summary.PriceChanges,
	}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("Import failed")
		return summary, err
	}
	p.logger.WithFields(fields).Info("Import finished")
	return summary, nil
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
