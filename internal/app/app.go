// Package app constructs the process-wide collaborators shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/chunker"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/database"
	"rag-document-platform/internal/docstore"
	"rag-document-platform/internal/extract"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/objectstore"
	"rag-document-platform/internal/queue"
	"rag-document-platform/internal/secrets"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/internal/vectorindex"
	"rag-document-platform/services"
)

// App holds the collaborators built once at process start
type App struct {
	Config   *config.Config
	Metrics  *telemetry.Metrics
	DB       *database.DB
	Store    *docstore.Store
	Index    vectorindex.Index
	Objects  objectstore.Store
	Gemini   *ai.GeminiClient
	Embedder ai.Embedder
	Redis    *redis.Client
	Mongo    *mongo.Client

	closers []func()
}

// Build connects every backend selected by cfg. On error the already opened ones are closed.
func Build(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("Application components ready",
		"db_driver", a.DB.Dialect,
		"vector_backend", cfg.VectorBackend,
		"storage_backend", cfg.StorageBackend,
		"embeddings_provider", cfg.EmbeddingsProvider,
	)
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, metrics := a.Config, a.Metrics

	password, err := DBPassword(ctx, cfg)
	if err != nil {
		return err
	}
	a.DB, err = database.Open(ctx, cfg, password)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func() { a.DB.Close() })
	a.Store = docstore.New(a.DB)

	var mongoDB *mongo.Database
	if cfg.VectorBackend == "mongo" {
		a.Mongo, err = config.ConnectMongoDB(cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.Mongo.Disconnect(ctx)
		})
		mongoDB = a.Mongo.Database(cfg.MongoDBName)
	}

	a.Index, err = vectorindex.New(ctx, cfg, a.DB, mongoDB)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}

	a.Objects, err = objectstore.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	a.Gemini, err = ai.NewGeminiClient(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { a.Gemini.Close() })

	a.Embedder, err = ai.NewEmbedder(cfg, a.Gemini, metrics)
	if err != nil {
		return err
	}

	a.Redis, err = config.NewRedisClient(cfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { a.Redis.Close() })

	return nil
}

// DBPassword returns DB_PASSWORD or, for postgres without one, the Secret Manager value
func DBPassword(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.DBDriver != database.DialectPostgres || cfg.DBPassword != "" {
		return cfg.DBPassword, nil
	}
	sm, err := secrets.NewSecretManager(ctx)
	if err != nil {
		return "", err
	}
	return secrets.Resolve(ctx, sm, cfg.DBPassword, cfg.ProjectID, cfg.DBPasswordSecretID)
}

// QueryOrchestrator wires the query path
func (a *App) QueryOrchestrator() *services.QueryOrchestrator {
	cfg := a.Config
	return services.NewQueryOrchestrator(a.Embedder, a.Index, a.Store, a.Gemini, services.QueryOptions{
		DefaultTopK:     cfg.DefaultTopK,
		Metrics:         a.Metrics,
		EmbedTimeout:    cfg.EmbedTimeout,
		SearchTimeout:   cfg.SearchTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
	})
}

// IngestionPipeline wires the ingestion path with a Redis lease per document
func (a *App) IngestionPipeline() *services.IngestionPipeline {
	cfg := a.Config
	return services.NewIngestionPipeline(
		a.Objects,
		extract.New(cfg, a.Gemini),
		chunker.New(cfg.ChunkTokens),
		a.Embedder,
		a.Store,
		a.Index,
		services.IngestionOptions{
			Locker:         queue.NewRedisLease(a.Redis, cfg.IngestLeaseTTL),
			Metrics:        a.Metrics,
			Concurrency:    cfg.EmbedConcurrency,
			EmbedBatchSize: cfg.EmbedBatchSize,
			EmbedTimeout:   cfg.EmbedTimeout,
			IndexTimeout:   cfg.SearchTimeout,
		},
	)
}

// Reconciler wires the store/index consistency sweep
func (a *App) Reconciler() *services.Reconciler {
	return services.NewReconciler(a.Store, a.Index, a.Embedder, a.Metrics, 0, a.Config.EmbedTimeout)
}

// RestoreMemoryIndex refills an empty in-process index from the document store.
// Rows committed by an earlier process are still flagged indexed, so they are reset first.
func (a *App) RestoreMemoryIndex(ctx context.Context) (services.ReconcileReport, error) {
	reset, err := a.Store.ResetIndexed(ctx)
	if err != nil {
		return services.ReconcileReport{}, err
	}
	if reset == 0 {
		return services.ReconcileReport{}, nil
	}
	logger.Info("Rebuilding in-memory vector index", "chunks", reset)
	return a.Reconciler().Drain(ctx)
}

// NewWorker builds the asynq server consuming storage events and its handler mux
func (a *App) NewWorker(concurrency int) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := a.Config.AsynqRedisOpt()
	if err != nil {
		return nil, nil, err
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue.QueueIngest: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("Task failed",
				"type", task.Type(),
				"error", err,
				"retry", retried,
				"max_retry", maxRetry,
			)
		}),
	})

	mux := asynq.NewServeMux()
	queue.NewTaskProcessor(a.IngestionPipeline()).Register(mux)
	return server, mux, nil
}

// Close releases collaborators in reverse order of construction
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
