// Package objectstore holds uploaded files and announces new objects to the ingestion queue.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

// ErrNotFound is returned by Get when the object does not exist
var ErrNotFound = errors.New("object not found")

// Store is a bucket/name addressed blob store
type Store interface {
	Put(ctx context.Context, bucket, name string, r io.Reader) error
	Get(ctx context.Context, bucket, name string) ([]byte, error)
}

// Publisher delivers object-created events
type Publisher interface {
	Publish(ctx context.Context, event models.ObjectEvent) error
}

// New opens the backend selected by STORAGE_BACKEND
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "local", "":
		return NewFSStore(cfg.FileStorageDir)
	case "gcs":
		return NewGCSStore(ctx)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// NotifyingStore publishes an ObjectEvent after every successful Put,
// standing in for the storage finalize trigger.
type NotifyingStore struct {
	Store
	publisher Publisher
}

func NewNotifyingStore(store Store, publisher Publisher) *NotifyingStore {
	return &NotifyingStore{Store: store, publisher: publisher}
}

func (s *NotifyingStore) Put(ctx context.Context, bucket, name string, r io.Reader) error {
	if err := s.Store.Put(ctx, bucket, name, r); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, models.ObjectEvent{Bucket: bucket, Name: name}); err != nil {
		return fmt.Errorf("object stored but event not published: %w", err)
	}
	logger.Debug("Object event published", "bucket", bucket, "name", name)
	return nil
}
