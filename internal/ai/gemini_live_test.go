package ai

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/config"
)

func liveClient(t *testing.T) *GeminiClient {
	t.Helper()
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		t.Skip("GEMINI_API_KEY not set")
	}
	cfg := &config.Config{
		GeminiAPIKey:          key,
		GeminiTier:            "free",
		LLMModelName:          "gemini-2.0-flash",
		GoogleEmbeddingsModel: "text-embedding-004",
	}
	client, err := NewGeminiClient(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGeminiLiveEmbed(t *testing.T) {
	client := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vector, err := client.Embed(ctx, "What is the refund policy?")
	require.NoError(t, err)
	assert.Len(t, vector, 768)
}

func TestGeminiLiveGenerate(t *testing.T) {
	client := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	text, err := client.Generate(ctx, "Reply with the single word: ready")
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestGeminiLiveEmbedMany(t *testing.T) {
	client := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vectors, err := client.EmbedMany(ctx, []string{"refund policy", "shipping times", "warranty terms"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 768)
	}
}
