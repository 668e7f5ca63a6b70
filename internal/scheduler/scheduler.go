package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rentalscope/internal/models"
	"rentalscope/internal/processor"
)

// JobType represents the pipeline runs the scheduler can start
type JobType int

const (
	JobTypeImport JobType = iota
	JobTypeClassify
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeImport:
		return "import"
	case JobTypeClassify:
		return "classify"
	default:
		return "unknown"
	}
}

// RunFunc starts one pipeline run.
type RunFunc func(ctx context.Context) (*models.RunSummary, error)

type job struct {
	jobType JobType
	run     RunFunc
}

// Scheduler runs the registered jobs in order every interval
type Scheduler struct {
	jobs       []job
	interval   time.Duration
	runOnStart bool
	logger     *logrus.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	jobMutex sync.Mutex // Ensures sequential job execution
}

// NewScheduler creates a new scheduler
func NewScheduler(interval time.Duration, runOnStart bool, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Add registers a job. Jobs run in the order they were added.
func (s *Scheduler) Add(jobType JobType, run RunFunc) {
	s.jobs = append(s.jobs, job{jobType: jobType, run: run})
}

// Start begins the scheduled tasks. It is a no-op when the interval is not
// positive.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Scheduler disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.runScheduler(ctx)
}

func (s *Scheduler) runScheduler(ctx context.Context) {
	defer s.wg.Done()

	s.logger.WithField("interval", s.interval.String()).Info("Scheduler started")
	if s.runOnStart {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job sequentially. A job that finds another run in
// progress is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		log := s.logger.WithField("job_type", j.jobType.String())
		log.Info("Starting scheduled job")

		summary, err := j.run(ctx)
		switch {
		case errors.Is(err, processor.ErrBusy):
			log.Info("Another run is in progress, skipping job")
		case err != nil:
			log.WithError(err).Error("Scheduled job failed")
		default:
			fields := logrus.Fields{}
			if summary != nil {
				fields["run_id"] = summary.RunID
			}
			log.WithFields(fields).Info("Scheduled job completed successfully")
		}
	}
}

// Stop gracefully stops the scheduler, waiting for a running job to return
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}
