package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rag-document-platform/internal/app"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg, "worker")
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	if cfg.VectorBackend == "memory" {
		logger.Warn("In-memory vector index is not shared with the API server; use pgvector or mongo with a separate worker")
	}

	a, err := app.Build(context.Background(), cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer a.Close()

	server, mux, err := a.NewWorker(cfg.EmbedConcurrency * 2)
	if err != nil {
		log.Fatal("Failed to create worker:", err)
	}

	scheduler := services.NewScheduler()
	if err := scheduler.ScheduleReconciler(a.Reconciler(), cfg.ReconcileInterval); err != nil {
		log.Fatal("Failed to schedule reconciler:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("Starting ingestion worker",
		"concurrency", cfg.EmbedConcurrency*2,
		"redis", cfg.RedisURL,
		"reconcile_interval", cfg.ReconcileInterval.String(),
	)

	if err := server.Start(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")
	server.Shutdown()
}
