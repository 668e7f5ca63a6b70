package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// ErrMissingAPIKey is returned before any work starts when a command needs
// the classification oracle and no key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":5250"`

	Database struct {
		// "sqlite" or "postgres"
		Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DB_DSN" envDefault:"rentalscope.db"`
	}

	Import struct {
		// Root of the scraped documents, scanned recursively
		DataDir   string `env:"DATA_DIR" envDefault:"data"`
		SourceExt string `env:"SOURCE_EXT" envDefault:".json"`

		// Pre-assign the keyword category to new listings
		HeuristicCategory bool `env:"IMPORT_HEURISTIC_CATEGORY" envDefault:"false"`

		// Classify each import batch before it is persisted
		ClassifyOnImport bool `env:"CLASSIFY_ON_IMPORT" envDefault:"false"`
	}

	Classifier struct {
		APIKey             string        `env:"OPENAI_API_KEY"`
		Model              string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
		BaseURL            string        `env:"OPENAI_BASE_URL"`
		PromptTemplatePath string        `env:"PROMPT_TEMPLATE_PATH"`
		BatchSize          int           `env:"CLASSIFY_BATCH_SIZE" envDefault:"50"`
		BatchDelay         time.Duration `env:"CLASSIFY_BATCH_DELAY" envDefault:"2s"`
		Timeout            time.Duration `env:"OPENAI_TIMEOUT" envDefault:"2m"`
		MaxRetries         int           `env:"OPENAI_MAX_RETRIES" envDefault:"2"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Number of listings persisted per batch
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"50"`

		// Maximum number of retries for a failed write
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"1"`
	}

	// Periodic import and classify while serving
	Schedule struct {
		// Zero disables the scheduler
		Interval   time.Duration `env:"SCHEDULE_INTERVAL" envDefault:"0"`
		RunOnStart bool          `env:"SCHEDULE_RUN_ON_START" envDefault:"false"`
	}

	Export struct {
		Dir             string `env:"EXPORT_DIR" envDefault:"export"`
		KaggleDatasetID string `env:"KAGGLE_DATASET_ID"`
	}
}

// LoadConfig reads .env from the working directory, if present, and then the
// environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Import.SourceExt = normalizeExt(cfg.Import.SourceExt)
	return cfg, nil
}

// RequireOracle fails when the classification oracle cannot be reached.
func (c *Config) RequireOracle() error {
	if strings.TrimSpace(c.Classifier.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ".json"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
