package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/database"
	"rag-document-platform/internal/docstore"
	"rag-document-platform/internal/objectstore"
	"rag-document-platform/models"
)

const testDim = 16

// hashEmbedder buckets words into a fixed-size vector; texts listed in fail return an error.
// batchDown makes every EmbedMany call fail outright.
type hashEmbedder struct {
	mu         sync.Mutex
	fail       map[string]bool
	batchDown  bool
	calls      int
	batchCalls int
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.vector(text)
}

func (e *hashEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batchCalls++
	down := e.batchDown
	e.mu.Unlock()
	if down {
		return nil, errors.New("batch endpoint unavailable")
	}
	out := make([][]float32, len(texts))
	var errs []error
	for i, text := range texts {
		v, err := e.vector(text)
		if err != nil {
			errs = append(errs, fmt.Errorf("text %d: %w", i, err))
			continue
		}
		out[i] = v
	}
	return out, errors.Join(errs...)
}

func (e *hashEmbedder) vector(text string) ([]float32, error) {
	e.mu.Lock()
	failing := e.fail[text]
	e.mu.Unlock()
	if failing {
		return nil, errors.New("model rejected input")
	}
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%testDim]++
	}
	v[0] += 0.01
	return v, nil
}

type memObjects map[string][]byte

func (m memObjects) Get(_ context.Context, bucket, name string) ([]byte, error) {
	data, ok := m[bucket+"/"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", objectstore.ErrNotFound, bucket, name)
	}
	return data, nil
}

// brokenObjects fails every read
type brokenObjects struct{}

func (brokenObjects) Get(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("storage: connection refused")
}

// textExtractor returns the bytes as one page, splitting on form feeds for paginated input
type textExtractor struct {
	err error
}

func (x textExtractor) Extract(_ context.Context, _ string, docType models.DocumentType, data []byte) ([]models.Page, error) {
	if x.err != nil {
		return nil, x.err
	}
	if docType != models.DocumentTypePDF {
		return []models.Page{{Text: string(data)}}, nil
	}
	var pages []models.Page
	for i, p := range strings.Split(string(data), "\f") {
		pages = append(pages, models.Page{Number: i + 1, Text: p})
	}
	return pages, nil
}

type mapLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *mapLocker) Acquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

// failingCommitStore rejects every ReplaceDocument
type failingCommitStore struct {
	DocumentStore
}

func (failingCommitStore) ReplaceDocument(context.Context, models.Document, []models.Chunk) ([]string, error) {
	return nil, errors.New("connection reset during commit")
}

// stubIndex returns fixed neighbors and records upserts
type stubIndex struct {
	neighbors []models.Neighbor
	err       error
	upserts   int
}

func (s *stubIndex) Upsert(context.Context, string, []float32) error {
	s.upserts++
	return nil
}

func (s *stubIndex) Search(_ context.Context, _ []float32, k int) ([]models.Neighbor, error) {
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.neighbors) {
		return s.neighbors[:k], nil
	}
	return s.neighbors, nil
}

func (s *stubIndex) Delete(context.Context, ...string) error { return nil }

type recordingGenerator struct {
	prompt string
	reply  string
	err    error
	calls  int
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	return g.reply, g.err
}

func newSQLiteStore(t *testing.T) *docstore.Store {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return docstore.New(db)
}

func words(n int, prefix string) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(out, " ")
}
