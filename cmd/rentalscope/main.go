package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rentalscope/config"
	"rentalscope/internal/api"
	"rentalscope/internal/classifier"
	"rentalscope/internal/database"
	"rentalscope/internal/export"
	"rentalscope/internal/processor"
	"rentalscope/internal/publish"
	"rentalscope/internal/scheduler"
)

const usage = `usage: rentalscope <command> [flags]

commands:
  import      read scraped documents into the database
  classify    send uncategorized listings to the classification oracle
  categorize  assign keyword categories to uncategorized listings
  export      write the dataset files to EXPORT_DIR
  publish     export and upload a new dataset version
  serve       run the HTTP API
`

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := run(logger, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.WithError(err).Fatal("rentalscope failed")
	}
}

func run(logger *logrus.Logger, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}
	command := args[0]

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	logger.SetLevel(level)

	flags := flag.NewFlagSet(command, flag.ContinueOnError)
	dataDir := flags.String("dir", cfg.Import.DataDir, "root directory of the scraped documents")
	exportDir := flags.String("out", cfg.Export.Dir, "export directory")
	message := flags.String("m", "", "dataset version notes")
	addr := flags.String("addr", cfg.HTTPAddr, "listen address")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	cfg.Import.DataDir = *dataDir
	cfg.Export.Dir = *exportDir
	cfg.HTTPAddr = *addr

	switch command {
	case "import", "classify", "categorize", "export", "publish", "serve":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	// Fail before touching the database when the oracle is required.
	if command == "classify" || (command == "import" && cfg.Import.ClassifyOnImport) {
		if err := cfg.RequireOracle(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}()
	if err := db.Migrate(); err != nil {
		return err
	}

	c, err := newClassifier(cfg, logger)
	if err != nil {
		return err
	}
	service := processor.NewService(db, cfg, c, logger)

	switch command {
	case "import":
		summary, err := service.Import(ctx)
		printSummary(summary)
		return err
	case "classify":
		summary, err := service.Classify(ctx)
		printSummary(summary)
		return err
	case "categorize":
		summary, err := service.Categorize(ctx)
		printSummary(summary)
		return err
	case "export":
		return exportAll(ctx, db, cfg, logger)
	case "publish":
		publisher := publish.NewPublisher(logger)
		if err := publisher.CheckCredentials(); err != nil {
			return err
		}
		if err := exportAll(ctx, db, cfg, logger); err != nil {
			return err
		}
		return publisher.Publish(ctx, cfg.Export.Dir, *message)
	default:
		sched := newScheduler(cfg, service, c != nil, logger)
		sched.Start(ctx)
		defer sched.Stop()
		return serve(ctx, service, cfg.HTTPAddr, logger)
	}
}

// newClassifier returns nil when no API key is configured.
func newClassifier(cfg *config.Config, logger *logrus.Logger) (*classifier.Classifier, error) {
	if cfg.RequireOracle() != nil {
		return nil, nil
	}
	template, err := classifier.LoadTemplate(cfg.Classifier.PromptTemplatePath)
	if err != nil {
		return nil, err
	}
	oracle := classifier.NewOpenAIOracle(classifier.OracleOptions{
		APIKey:     cfg.Classifier.APIKey,
		Model:      cfg.Classifier.Model,
		BaseURL:    cfg.Classifier.BaseURL,
		Timeout:    cfg.Classifier.Timeout,
		MaxRetries: cfg.Classifier.MaxRetries,
	})
	return classifier.New(oracle, template, cfg.Classifier.BatchSize, cfg.Classifier.BatchDelay, logger), nil
}

// newScheduler registers the periodic jobs for serve. Without an oracle only
// imports are scheduled and the classify endpoint answers 503.
func newScheduler(cfg *config.Config, service *processor.Service, classify bool, logger *logrus.Logger) *scheduler.Scheduler {
	sched := scheduler.NewScheduler(cfg.Schedule.Interval, cfg.Schedule.RunOnStart, logger)
	sched.Add(scheduler.JobTypeImport, service.Import)
	if classify {
		sched.Add(scheduler.JobTypeClassify, service.Classify)
	} else {
		logger.Warn("OPENAI_API_KEY is not set, classification is disabled for this server")
	}
	return sched
}

func exportAll(ctx context.Context, db *database.Database, cfg *config.Config, logger *logrus.Logger) error {
	listings, err := db.ListAll(ctx)
	if err != nil {
		return err
	}
	return export.NewExporter(cfg.Export.KaggleDatasetID, logger).Write(cfg.Export.Dir, listings)
}

func serve(ctx context.Context, service *processor.Service, addr string, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(ctx, service, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
