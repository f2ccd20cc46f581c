package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-document-platform/internal/logger"
	"rag-document-platform/utils"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetupHealthRoutes registers the liveness probe and a readiness probe over deps
func SetupHealthRoutes(router *gin.Engine, deps map[string]Pinger) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := utils.WithProbeTimeout(c.Request.Context())
		defer cancel()

		checks := gin.H{}
		ready := true
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.Warn("Readiness check failed", "dependency", name, "error", err)
				checks[name] = "unavailable"
				ready = false
				continue
			}
			checks[name] = "ok"
		}

		if !ready {
			utils.RespondWithError(c, http.StatusServiceUnavailable, utils.CodeNotReady, "Dependencies unavailable", checks)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
	})
}
