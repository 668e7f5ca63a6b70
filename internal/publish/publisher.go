// Package publish pushes an export directory to the hosted dataset through
// the kaggle command line tool.
package publish

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"rentalscope/internal/export"
)

// ErrMissingCredentials means neither ~/.kaggle/kaggle.json nor the
// KAGGLE_USERNAME/KAGGLE_KEY pair is available.
var ErrMissingCredentials = errors.New("kaggle credentials not found")

// Publisher runs the kaggle CLI and streams its output to the logger.
type Publisher struct {
	logger *logrus.Logger
	binary string

	homeDir func() (string, error)
	getenv  func(string) string
}

func NewPublisher(logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Publisher{
		logger:  logger,
		binary:  "kaggle",
		homeDir: os.UserHomeDir,
		getenv:  os.Getenv,
	}
}

// CheckCredentials verifies that the CLI will be able to authenticate.
func (p *Publisher) CheckCredentials() error {
	if p.getenv("KAGGLE_USERNAME") != "" && p.getenv("KAGGLE_KEY") != "" {
		return nil
	}
	home, err := p.homeDir()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}
	if _, err := os.Stat(filepath.Join(home, ".kaggle", "kaggle.json")); err != nil {
		return ErrMissingCredentials
	}
	return nil
}

// Publish uploads dir as a new version of its dataset, creating the dataset
// on first publish. dir must contain the dataset metadata file.
func (p *Publisher) Publish(ctx context.Context, dir, message string) error {
	if err := p.CheckCredentials(); err != nil {
		return err
	}

	id, err := datasetID(dir)
	if err != nil {
		return err
	}

	log := p.logger.WithFields(logrus.Fields{"dataset": id, "dir": dir})

	if err := p.run(ctx, "datasets", "status", id); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info("Dataset not found, creating it")
		if err := p.run(ctx, "datasets", "create", "-p", dir); err != nil {
			return fmt.Errorf("failed to create dataset: %w", err)
		}
		log.Info("Dataset created")
		return nil
	}

	if strings.TrimSpace(message) == "" {
		message = "Update"
	}
	if err := p.run(ctx, "datasets", "version", "-p", dir, "-m", message); err != nil {
		return fmt.Errorf("failed to publish dataset version: %w", err)
	}
	log.Info("Dataset version published")
	return nil
}

func datasetID(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, export.MetadataFile))
	if err != nil {
		return "", fmt.Errorf("failed to read dataset metadata: %w", err)
	}
	var meta export.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("failed to parse dataset metadata: %w", err)
	}
	if meta.ID == "" {
		return "", errors.New("dataset metadata has no id, set KAGGLE_DATASET_ID and export again")
	}
	return meta.ID, nil
}

// run executes one CLI invocation, logging stdout at info and stderr at warn.
func (p *Publisher) run(ctx context.Context, args ...string) error {
	p.logger.WithField("args", args).Debug("Running kaggle")

	cmd := exec.CommandContext(ctx, p.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.binary, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.stream(&wg, stdout, logrus.InfoLevel)
	go p.stream(&wg, stderr, logrus.WarnLevel)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s %s failed: %w", p.binary, strings.Join(args, " "), err)
	}
	return nil
}

func (p *Publisher) stream(wg *sync.WaitGroup, r io.Reader, level logrus.Level) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			p.logger.WithField("source", "kaggle").Log(level, line)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.WithError(err).Error("Scanner error")
	}
}
