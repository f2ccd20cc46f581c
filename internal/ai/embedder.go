package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"rag-document-platform/internal/config"
	"rag-document-platform/internal/telemetry"
)

// ErrNoEmbedding marks a text the provider returned no vector for
var ErrNoEmbedding = errors.New("no embedding returned")

// maxBatch bounds the texts sent in one batch request
const maxBatch = 100

// Embedder maps text to a fixed-dimension vector.
// EmbedMany returns one entry per text; an entry is nil when that text got no
// vector, and the error then joins one cause per missing entry.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder returns the embedder selected by EMBEDDINGS_PROVIDER.
// Default provider is Google Generative AI (text-embedding-004).
func NewEmbedder(cfg *config.Config, gemini *GeminiClient, metrics *telemetry.Metrics) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		if gemini == nil {
			return nil, errors.New("gemini client required for google embeddings")
		}
		return gemini, nil
	case "openai":
		return NewOpenAIEmbedder(cfg, metrics)
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

// OpenAIEmbedder uses the OpenAI embeddings API, truncated to the index dimension
type OpenAIEmbedder struct {
	client  *openai.Client
	breaker *gobreaker.CircuitBreaker
	model   string
	dim     int
}

func NewOpenAIEmbedder(cfg *config.Config, metrics *telemetry.Metrics) (*OpenAIEmbedder, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("missing OPENAI_API_KEY for embeddings")
	}
	return &OpenAIEmbedder{
		client:  openai.NewClient(cfg.OpenAIAPIKey),
		breaker: newBreaker("OpenAIEmbeddings", metrics),
		model:   cfg.OpenAIEmbeddingsModel,
		dim:     cfg.VectorDimensions,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := telemetry.Tracer("openai-client").Start(ctx, "openai.create_embeddings")
	defer span.End()
	span.SetAttributes(attribute.String("openai.model", e.model))

	if strings.TrimSpace(text) == "" {
		return nil, errors.New("cannot embed empty text")
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model:      openai.EmbeddingModel(e.model),
			Input:      []string{text},
			Dimensions: e.dim,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("no embedding data returned from API")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	v := append([]float32(nil), result.([]float32)...)
	l2normalize(v)
	return v, nil
}

// EmbedMany embeds texts with multi-input CreateEmbeddings requests
func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := telemetry.Tracer("openai-client").Start(ctx, "openai.create_embeddings_batch")
	defer span.End()
	span.SetAttributes(attribute.String("openai.model", e.model), attribute.Int("embedding.texts", len(texts)))

	vecs, err := embedBatches(ctx, texts, func(ctx context.Context, batch []string) ([][]float32, error) {
		result, err := e.breaker.Execute(func() (interface{}, error) {
			return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model:      openai.EmbeddingModel(e.model),
				Input:      batch,
				Dimensions: e.dim,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("openai embed: %w", err)
		}
		out := make([][]float32, len(batch))
		for _, d := range result.(openai.EmbeddingResponse).Data {
			if d.Index < 0 || d.Index >= len(out) || len(d.Embedding) == 0 {
				continue
			}
			v := append([]float32(nil), d.Embedding...)
			l2normalize(v)
			out[d.Index] = v
		}
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return vecs, err
}

// embedBatches sends the non-blank texts through call in groups of maxBatch and
// maps the results back to their positions. Blank texts and entries a call left
// empty come back nil with ErrNoEmbedding; a failed call fails its whole group.
func embedBatches(ctx context.Context, texts []string, call func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	pos := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			errs[i] = fmt.Errorf("text %d: cannot embed empty text: %w", i, ErrNoEmbedding)
			continue
		}
		pos = append(pos, i)
	}

	for start := 0; start < len(pos); start += maxBatch {
		group := pos[start:min(start+maxBatch, len(pos))]
		batch := make([]string, len(group))
		for j, i := range group {
			batch[j] = texts[i]
		}

		out, err := call(ctx, batch)
		if err == nil && len(out) != len(batch) {
			err = fmt.Errorf("got %d embeddings for %d texts: %w", len(out), len(batch), ErrNoEmbedding)
		}
		for j, i := range group {
			switch {
			case err != nil:
				errs[i] = fmt.Errorf("text %d: %w", i, err)
			case len(out[j]) == 0:
				errs[i] = fmt.Errorf("text %d: %w", i, ErrNoEmbedding)
			default:
				vecs[i] = out[j]
			}
		}
	}
	return vecs, errors.Join(errs...)
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
