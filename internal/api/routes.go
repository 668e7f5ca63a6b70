package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine with CORS and the run endpoints. Runs are
// cancelled with ctx, not with the request.
func NewRouter(ctx context.Context, runner Runner, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	SetupRoutes(router, NewHandler(ctx, runner, logger))
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.POST("/runs/import", handler.RunImport)
		api.POST("/runs/classify", handler.RunClassify)
		api.GET("/runs/latest", handler.LatestRun)
	}
}
