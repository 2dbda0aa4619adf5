package app

import (
	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/config"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/pkg/metrics"
	"github.com/sentinelhive/svh/internal/pkg/response"
	"go.uber.org/zap"
)

// newRouter builds the engine shared by both tiers: request ids, recovery,
// request logging, enveloped 404s and /metrics.
func newRouter(cfg *config.AppConfig, logger *zap.Logger, m *metrics.Metrics) *gin.Engine {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.RequestID())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.CurrentRequestID(c)),
		)
		response.InternalError(c)
	}))
	router.Use(middleware.Logger(logger))

	router.NoRoute(response.NotFound)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	return router
}
