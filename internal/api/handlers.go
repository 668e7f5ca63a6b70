package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rentalscope/config"
	"rentalscope/internal/models"
	"rentalscope/internal/processor"
)

// Runner starts pipeline runs. *processor.Service implements it.
type Runner interface {
	Import(ctx context.Context) (*models.RunSummary, error)
	Classify(ctx context.Context) (*models.RunSummary, error)
	LatestRun(ctx context.Context) (*models.RunSummary, error)
}

type Handler struct {
	// runs outlive the request that started them; ctx is the server lifetime
	ctx    context.Context
	runner Runner
	logger *logrus.Logger
}

func NewHandler(ctx context.Context, runner Runner, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{ctx: ctx, runner: runner, logger: logger}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) RunImport(c *gin.Context) {
	h.run(c, "import", h.runner.Import)
}

func (h *Handler) RunClassify(c *gin.Context) {
	h.run(c, "classify", h.runner.Classify)
}

func (h *Handler) LatestRun(c *gin.Context) {
	summary, err := h.runner.LatestRun(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load latest run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load latest run"})
		return
	}
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No runs recorded"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// run executes the run synchronously and answers with its summary. A client
// that disconnects does not cancel the run.
func (h *Handler) run(c *gin.Context, kind string, fn func(context.Context) (*models.RunSummary, error)) {
	summary, err := fn(h.ctx)
	switch {
	case errors.Is(err, processor.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, config.ErrMissingAPIKey):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.WithError(err).WithField("kind", kind).Error("Run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Run failed", "summary": summary})
	default:
		c.JSON(http.StatusOK, summary)
	}
}
