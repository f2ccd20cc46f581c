package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
	"rag-document-platform/services"
)

const (
	TaskObjectFinalized = "object:finalized"

	QueueIngest = "ingest"
)

// NewObjectFinalizedTask wraps a storage event for delivery to the ingestion worker
func NewObjectFinalizedTask(event models.ObjectEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskObjectFinalized,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(15*time.Minute),
		asynq.Queue(QueueIngest),
	), nil
}

// Publisher enqueues object events; it satisfies objectstore.Publisher
type Publisher struct {
	client *asynq.Client
}

func NewPublisher(opt asynq.RedisConnOpt) *Publisher {
	return &Publisher{client: asynq.NewClient(opt)}
}

func (p *Publisher) Publish(ctx context.Context, event models.ObjectEvent) error {
	task, err := NewObjectFinalizedTask(event)
	if err != nil {
		return err
	}
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskObjectFinalized, err)
	}
	logger.Debug("Enqueued ingestion task", "task_id", info.ID, "queue", info.Queue, "name", event.Name)
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// Ingester is the pipeline entry point the worker drives
type Ingester interface {
	Ingest(ctx context.Context, event models.ObjectEvent) (*models.IngestResult, error)
}

// Task handlers
type TaskProcessor struct {
	ingester Ingester
}

func NewTaskProcessor(ingester Ingester) *TaskProcessor {
	return &TaskProcessor{ingester: ingester}
}

// Register mounts the handlers on an asynq mux
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskObjectFinalized, p.ProcessObjectFinalized)
}

// ProcessObjectFinalized ingests one object. Final failures are archived with
// SkipRetry; transient ones are returned so asynq redelivers the event.
func (p *TaskProcessor) ProcessObjectFinalized(ctx context.Context, t *asynq.Task) error {
	var event models.ObjectEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if event.Bucket == "" || event.Name == "" {
		return fmt.Errorf("event missing bucket or name: %w", asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	log := logger.With("bucket", event.Bucket, "document", event.Name, "retry", retried)
	log.Info("Processing object event")

	result, err := p.ingester.Ingest(ctx, event)
	if err == nil {
		if result != nil && result.Skipped {
			log.Info("Object skipped", "chunks", result.Chunks)
		}
		return nil
	}

	if !services.Retryable(err) {
		log.Error("Ingestion failed permanently", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if errors.Is(err, services.ErrIngestionInProgress) {
		log.Info("Document is being ingested by another worker, will retry")
	} else {
		log.Error("Ingestion failed, will retry", "error", err)
	}
	return err
}
