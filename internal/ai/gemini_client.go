package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/models"
)

// ErrRateLimited is returned when the local daily budget for the configured tier is spent
var ErrRateLimited = errors.New("gemini rate limit exceeded: wait before retry")

const extractionPrompt = "Extract all of the text from this PDF document, page by page, in reading order. " +
	"Begin every page with a line of the form \"--- Page N ---\". Output only the document text."

type GeminiClient struct {
	client        *genai.Client
	breaker       *gobreaker.CircuitBreaker
	rateLimiter   *rate.Limiter
	tokenCounter  *TokenCounter
	generateModel string
	embedModel    string
	tier          string
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(cfg.GeminiTier)

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1))

	return &GeminiClient{
		client:        client,
		breaker:       newBreaker("GeminiAPI", metrics),
		rateLimiter:   rateLimiter,
		tokenCounter:  &TokenCounter{limits: limits},
		generateModel: cfg.LLMModelName,
		embedModel:    cfg.GoogleEmbeddingsModel,
		tier:          cfg.GeminiTier,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Generate sends a fully assembled prompt to the generative model and returns its text
func (gc *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.Tracer("gemini-client").Start(ctx, "gemini.generate_content")
	defer span.End()

	estimatedTokens := estimateTokens(prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", gc.generateModel),
	)

	if err := gc.admit(ctx, estimatedTokens); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generateModel)
		model.SetTemperature(0.2)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}
		gc.tokenCounter.RecordUsage(extractTokenUsage(resp), 1)
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := responseText(result.(*genai.GenerateContentResponse))
	if text == "" {
		return "", errors.New("gemini generate: empty response")
	}
	return text, nil
}

// Embed returns the embedding vector for one text
func (gc *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := telemetry.Tracer("gemini-client").Start(ctx, "gemini.embed_content")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", gc.embedModel))

	if strings.TrimSpace(text) == "" {
		return nil, errors.New("cannot embed empty text")
	}
	if err := gc.admit(ctx, estimateTokens(text)); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		resp, err := gc.client.EmbeddingModel(gc.embedModel).EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, errors.New("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	return result.([]float32), nil
}

// EmbedMany embeds texts with BatchEmbedContents, one request per group of maxBatch
func (gc *GeminiClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := telemetry.Tracer("gemini-client").Start(ctx, "gemini.batch_embed_contents")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", gc.embedModel), attribute.Int("embedding.texts", len(texts)))

	vecs, err := embedBatches(ctx, texts, func(ctx context.Context, batch []string) ([][]float32, error) {
		tokens := 0
		for _, t := range batch {
			tokens += estimateTokens(t)
		}
		if err := gc.admit(ctx, tokens); err != nil {
			return nil, err
		}

		result, err := gc.breaker.Execute(func() (interface{}, error) {
			em := gc.client.EmbeddingModel(gc.embedModel)
			b := em.NewBatch()
			for _, t := range batch {
				b.AddContent(genai.Text(t))
			}
			return em.BatchEmbedContents(ctx, b)
		})
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		resp := result.(*genai.BatchEmbedContentsResponse)
		out := make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			if e != nil {
				out[i] = e.Values
			}
		}
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return vecs, err
}

// ExtractPDF uploads a PDF to the Gemini file API and asks the model for its text.
// Pages are returned in output order; a response without page markers is page 1.
func (gc *GeminiClient) ExtractPDF(ctx context.Context, fileName string, data []byte) ([]models.Page, error) {
	ctx, span := telemetry.Tracer("gemini-client").Start(ctx, "gemini.extract_pdf")
	defer span.End()
	span.SetAttributes(attribute.String("document.name", fileName), attribute.Int("document.bytes", len(data)))

	if err := gc.admit(ctx, 0); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		file, err := gc.client.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{
			DisplayName: fileName,
			MIMEType:    "application/pdf",
		})
		if err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		defer func() {
			if err := gc.client.DeleteFile(context.WithoutCancel(ctx), file.Name); err != nil {
				logger.Warn("Failed to delete uploaded file", "file", file.Name, "error", err)
			}
		}()

		model := gc.client.GenerativeModel(gc.generateModel)
		model.SetTemperature(0)
		resp, err := model.GenerateContent(ctx,
			genai.FileData{MIMEType: file.MIMEType, URI: file.URI},
			genai.Text(extractionPrompt),
		)
		if err != nil {
			return nil, err
		}
		gc.tokenCounter.RecordUsage(extractTokenUsage(resp), 1)
		return responseText(resp), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("gemini extract: %w", err)
	}
	return splitPageMarkers(result.(string)), nil
}

// admit applies the daily budget and then waits for the per-minute limiter
func (gc *GeminiClient) admit(ctx context.Context, tokens int) error {
	if !gc.tokenCounter.CanConsume(tokens, 1) {
		return ErrRateLimited
	}
	return gc.rateLimiter.Wait(ctx)
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token ≈ 4 characters
func estimateTokens(text string) int {
	return len(text) / 4
}

func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	return max(estimateTokens(responseText(resp)), 1)
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	return strings.TrimSpace(sb.String())
}

var pageMarker = regexp.MustCompile(`^-{3}\s*Page\s+(\d+)\s*-{3}$`)

// splitPageMarkers cuts model output on "--- Page N ---" lines and numbers each
// page with its marker's N. Text ahead of the first marker belongs to the first
// marked page. Output without markers is page 1.
func splitPageMarkers(text string) []models.Page {
	var pages []models.Page
	var current strings.Builder
	number := 0

	flush := func() {
		if number == 0 {
			return
		}
		pages = append(pages, models.Page{Number: number, Text: current.String()})
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		m := pageMarker.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			current.WriteString(line)
			current.WriteByte('\n')
			continue
		}
		flush()
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			n = number + 1
		}
		number = n
	}

	if number == 0 {
		if strings.TrimSpace(current.String()) == "" {
			return nil
		}
		return []models.Page{{Number: 1, Text: current.String()}}
	}
	flush()
	return pages
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
