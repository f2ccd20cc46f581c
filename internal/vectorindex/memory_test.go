package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/config"
)

func TestMemorySearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.Upsert(ctx, "east", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "north", []float32{0, 1}))
	require.NoError(t, idx.Upsert(ctx, "northeast", []float32{1, 1}))
	require.NoError(t, idx.Upsert(ctx, "west", []float32{-1, 0}))

	got, err := idx.Search(ctx, []float32{2, 0.1}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "east", got[0].ID)
	assert.Equal(t, "northeast", got[1].ID)
	assert.Equal(t, "north", got[2].ID)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestMemorySearchFewerThanK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Upsert(ctx, id, []float32{1, 0}))
	}

	got, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	// ties break by id
	assert.Equal(t, "a", got[0].ID)
}

func TestMemoryEmptyIndex(t *testing.T) {
	got, err := NewMemory(2).Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryUpsertReplacesAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}))
	assert.Equal(t, 1, idx.Len())

	got, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)

	require.NoError(t, idx.Delete(ctx, "a", "missing"))
	assert.Zero(t, idx.Len())
}

func TestMemoryDimensionMismatch(t *testing.T) {
	idx := NewMemory(3)
	assert.ErrorIs(t, idx.Upsert(context.Background(), "a", []float32{1, 0}), ErrDimensionMismatch)
	_, err := idx.Search(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}))
}

func TestNewBackendSelection(t *testing.T) {
	ctx := context.Background()

	idx, err := New(ctx, &config.Config{VectorBackend: "memory", VectorDimensions: 4}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, idx)

	_, err = New(ctx, &config.Config{VectorBackend: "pgvector"}, nil, nil)
	assert.Error(t, err)
	_, err = New(ctx, &config.Config{VectorBackend: "mongo"}, nil, nil)
	assert.Error(t, err)
	_, err = New(ctx, &config.Config{VectorBackend: "faiss"}, nil, nil)
	assert.Error(t, err)
}
