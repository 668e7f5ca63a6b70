package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rentalscope/config"
	"rentalscope/internal/categorize"
	"rentalscope/internal/classifier"
	"rentalscope/internal/database"
	"rentalscope/internal/models"
)

// ErrBusy is returned when a run is started while another is in progress.
var ErrBusy = errors.New("another run is in progress")

// Service runs the pipeline commands against one database handle and
// records a summary for every run. Runs never overlap.
type Service struct {
	db         *database.Database
	config     *config.Config
	classifier *classifier.Classifier
	logger     *logrus.Logger

	mu sync.Mutex
}

// NewService wires the commands. c may be nil when no oracle is configured;
// classification then fails with config.ErrMissingAPIKey.
func NewService(db *database.Database, cfg *config.Config, c *classifier.Classifier, logger *logrus.Logger) *Service {
	return &Service{db: db, config: cfg, classifier: c, logger: logger}
}

// Import reads the configured data directory into the database.
func (s *Service) Import(ctx context.Context) (*models.RunSummary, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	var batchClassifier BatchClassifier
	if s.config.Import.ClassifyOnImport {
		if s.classifier == nil {
			return nil, config.ErrMissingAPIKey
		}
		batchClassifier = s.classifier
	}

	importer := NewImporter(s.db, nil, batchClassifier, s.config, s.logger)
	summary, err := importer.Run(ctx, s.config.Import.DataDir)
	s.save(summary)
	return summary, err
}

// Classify sends every uncategorized listing to the oracle.
func (s *Service) Classify(ctx context.Context) (*models.RunSummary, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	if s.classifier == nil {
		return nil, config.ErrMissingAPIKey
	}

	summary := s.newSummary(models.RunKindClassify)
	err := s.classifier.Sweep(ctx, s.db, summary)
	s.finish(summary, err)
	return summary, err
}

// Categorize applies the keyword categorizer to uncategorized listings.
// Listings it cannot place stay empty for the classifier.
func (s *Service) Categorize(ctx context.Context) (*models.RunSummary, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	summary := s.newSummary(models.RunKindCategorize)
	err := s.categorize(ctx, summary)
	s.finish(summary, err)
	return summary, err
}

func (s *Service) categorize(ctx context.Context, summary *models.RunSummary) error {
	pending, err := s.db.ListUncategorized(ctx)
	if err != nil {
		return err
	}

	labels := make(map[string]string, len(pending))
	for _, l := range pending {
		summary.Processed++
		category := categorize.Categorize(l.Description, l.Bedrooms)
		if category == models.CategoryUnknown {
			summary.Skipped++
			continue
		}
		labels[l.ID] = category
	}
	if len(labels) == 0 {
		return nil
	}
	if err := s.db.SetCategories(ctx, labels, models.CategorySourceHeuristic); err != nil {
		return err
	}
	summary.Classified = len(labels)
	return nil
}

// LatestRun returns the summary of the most recent run, or nil.
func (s *Service) LatestRun(ctx context.Context) (*models.RunSummary, error) {
	return s.db.LatestRunSummary(ctx)
}

func (s *Service) newSummary(kind models.RunKind) *models.RunSummary {
	return &models.RunSummary{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
	}
}

func (s *Service) finish(summary *models.RunSummary, err error) {
	summary.FinishedAt = time.Now().UTC()
	summary.Failed = err != nil

	log := s.logger.WithFields(logrus.Fields{
		"run_id":             summary.RunID,
		"kind":               summary.Kind,
		"processed":          summary.Processed,
		"classified":         summary.Classified,
		"skipped":            summary.Skipped,
		"batches_classified": summary.BatchesClassified,
		"batches_failed":     summary.BatchesFailed,
		"errors":             summary.Errors,
	})
	if err != nil {
		log.WithError(err).Error("Run failed")
	} else {
		log.Info("Run finished")
	}
	s.save(summary)
}

func (s *Service) save(summary *models.RunSummary) {
	if summary == nil {
		return
	}
	// Save with a fresh context so a cancelled run is still recorded
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.db.SaveRunSummary(ctx, summary); err != nil {
		s.logger.WithError(err).WithField("run_id", summary.RunID).Error("Failed to save run summary")
	}
}
