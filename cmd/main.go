package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"

	"rag-document-platform/internal/app"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/objectstore"
	"rag-document-platform/internal/queue"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/middleware"
	"rag-document-platform/routes"
	"rag-document-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg, "api")
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer a.Close()

	redisOpt, err := cfg.AsynqRedisOpt()
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}
	publisher := queue.NewPublisher(redisOpt)
	defer publisher.Close()
	uploads := objectstore.NewNotifyingStore(a.Objects, publisher)

	// The in-memory index lives in this process, so ingestion and reconciliation must run here too
	if cfg.VectorBackend == "memory" {
		report, err := a.RestoreMemoryIndex(ctx)
		if err != nil {
			logger.Error("Failed to rebuild in-memory vector index, reconciler will retry", "error", err)
		} else if report.Reindexed+report.Failed > 0 {
			logger.Info("In-memory vector index rebuilt", "reindexed", report.Reindexed, "failed", report.Failed)
		}

		scheduler := services.NewScheduler()
		if err := scheduler.ScheduleReconciler(a.Reconciler(), cfg.ReconcileInterval); err != nil {
			log.Fatal("Failed to schedule reconciler:", err)
		}
		scheduler.Start()
		defer scheduler.Stop()

		worker, mux, err := a.NewWorker(cfg.EmbedConcurrency)
		if err != nil {
			log.Fatal("Failed to create embedded worker:", err)
		}
		if err := worker.Start(mux); err != nil {
			log.Fatal("Failed to start embedded worker:", err)
		}
		defer worker.Shutdown()
		logger.Info("Embedded ingestion worker started")
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(a.Redis, cfg))
	router.Use(middleware.BrotliCompression(brotli.DefaultCompression))

	routes.SetupHealthRoutes(router, map[string]routes.Pinger{
		"database": a.Store,
		"redis":    redisPinger{a},
	})
	routes.SetupAPIRoutes(router, cfg, uploads, a.QueryOrchestrator())

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

type redisPinger struct{ a *app.App }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.a.Redis.Ping(ctx).Err()
}
