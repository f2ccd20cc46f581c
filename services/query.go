package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/models"
)

// NoResultsAnswer is returned when retrieval finds nothing to ground an answer in
const NoResultsAnswer = "No relevant information was found in the uploaded documents to answer this question."

const (
	DefaultTopK = 5
	MaxTopK     = 100
)

type QueryOptions struct {
	DefaultTopK     int
	Metrics         *telemetry.Metrics
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration
}

// QueryOrchestrator answers a question from retrieved chunk content only
type QueryOrchestrator struct {
	embedder  Embedder
	index     VectorIndex
	store     DocumentStore
	generator Generator
	opts      QueryOptions
}

func NewQueryOrchestrator(embedder Embedder, index VectorIndex, store DocumentStore, generator Generator, opts QueryOptions) *QueryOrchestrator {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	return &QueryOrchestrator{
		embedder:  embedder,
		index:     index,
		store:     store,
		generator: generator,
		opts:      opts,
	}
}

// Answer runs embed, search, hydrate, prompt and generate for one question.
// Sources keep the similarity ranking, closest first.
func (q *QueryOrchestrator) Answer(ctx context.Context, req models.QueryRequest) (answer *models.Answer, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer("query").Start(ctx, "query.answer")
	defer func() {
		outcome, sources := "answered", 0
		switch {
		case err != nil:
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case answer != nil && len(answer.Sources) == 0:
			outcome = "no_results"
		}
		if answer != nil {
			sources = len(answer.Sources)
		}
		span.SetAttributes(attribute.String("query.outcome", outcome), attribute.Int("query.sources", sources))
		span.End()
		q.opts.Metrics.RecordQuery(ctx, outcome, sources, time.Since(start).Seconds())
	}()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fail(ErrInvalidRequest, "query", errors.New("question must not be empty"))
	}
	topK := q.opts.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK <= 0 {
		return nil, fail(ErrInvalidRequest, "query", fmt.Errorf("top_k must be a positive integer, got %d", topK))
	}
	if topK > MaxTopK {
		return nil, fail(ErrInvalidRequest, "query", fmt.Errorf("top_k must be at most %d", MaxTopK))
	}
	span.SetAttributes(attribute.Int("query.top_k", topK))

	vector, err := q.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	neighbors, err := q.search(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return noResults(), nil
	}

	sources, err := q.hydrate(ctx, neighbors)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return noResults(), nil
	}

	gctx, cancel := withTimeout(ctx, q.opts.GenerateTimeout)
	defer cancel()
	text, err := q.generator.Generate(gctx, BuildPrompt(question, sources))
	if err != nil {
		return nil, upstream("generate answer", err)
	}

	logger.Info("Query answered",
		"top_k", topK,
		"neighbors", len(neighbors),
		"sources", len(sources),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &models.Answer{Answer: text, Sources: sources}, nil
}

func (q *QueryOrchestrator) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, q.opts.EmbedTimeout)
	defer cancel()
	vec, err := q.embedder.Embed(ctx, question)
	if err != nil {
		return nil, upstream("embed question", err)
	}
	if len(vec) == 0 {
		return nil, upstream("embed question", errors.New("empty vector"))
	}
	return vec, nil
}

func (q *QueryOrchestrator) search(ctx context.Context, vector []float32, k int) ([]models.Neighbor, error) {
	ctx, cancel := withTimeout(ctx, q.opts.SearchTimeout)
	defer cancel()
	neighbors, err := q.index.Search(ctx, vector, k)
	if err != nil {
		return nil, upstream("vector search", err)
	}
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// hydrate loads the neighbors' chunks and returns them in neighbor order.
// Ids the store does not know are dropped.
func (q *QueryOrchestrator) hydrate(ctx context.Context, neighbors []models.Neighbor) ([]models.Source, error) {
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}

	chunks, err := q.store.ChunksByID(ctx, ids)
	if err != nil {
		return nil, fail(ErrPersistenceFailure, "hydrate chunks", err)
	}

	byID := make(map[string]models.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	sources := make([]models.Source, 0, len(chunks))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			logger.Debug("Dropping neighbor missing from document store", "chunk_id", id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sources = append(sources, models.SourceFromChunk(c))
	}
	return sources, nil
}

func noResults() *models.Answer {
	return &models.Answer{Answer: NoResultsAnswer, Sources: []models.Source{}}
}

// SourceLabel is the human readable attribution of a source, e.g. "report.pdf, page 3"
func SourceLabel(s models.Source) string {
	if s.PageNumber != nil {
		return fmt.Sprintf("%s, page %d", s.DocumentName, *s.PageNumber)
	}
	return s.DocumentName
}

// BuildContext renders sources in rank order, each under a numbered label
func BuildContext(sources []models.Source) string {
	var sb strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s\n\n", i+1, SourceLabel(s), s.TextContent)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// BuildPrompt wraps the grounding context and question in the answering instructions
func BuildPrompt(question string, sources []models.Source) string {
	return fmt.Sprintf(`You are an assistant that answers questions about the user's uploaded documents.
Answer using only the information in the context below. Do not use outside knowledge.
If the context does not contain the answer, say explicitly that the documents do not contain it.
Attribute every claim to the label of the source it comes from, for example [Source 1: report.pdf, page 2].

Context:
%s

Question: %s

Answer:`, BuildContext(sources), question)
}
