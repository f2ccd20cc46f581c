package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"
	storage "google.golang.org/api/storage/v1"
)

// GCSStore talks to Cloud Storage with application default credentials
type GCSStore struct {
	svc *storage.Service
}

func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	svc, err := storage.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{svc: svc}, nil
}

func (s *GCSStore) Put(ctx context.Context, bucket, name string, r io.Reader) error {
	_, err := s.svc.Objects.Insert(bucket, &storage.Object{Name: name}).Media(r).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("upload gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, name string) ([]byte, error) {
	resp, err := s.svc.Objects.Get(bucket, name).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, bucket, name)
		}
		return nil, fmt.Errorf("download gs://%s/%s: %w", bucket, name, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
