package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"rag-document-platform/models"
)

// Memory is an in-process index using brute-force cosine distance
type Memory struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float32
}

func NewMemory(dimension int) *Memory {
	return &Memory{dimension: dimension, vectors: make(map[string][]float32)}
}

func (m *Memory) Upsert(_ context.Context, id string, vector []float32) error {
	if err := checkDim(m.dimension, vector); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[id] = append([]float32(nil), vector...)
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float32, k int) ([]models.Neighbor, error) {
	if err := checkDim(m.dimension, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	results := make([]models.Neighbor, 0, len(m.vectors))
	for id, v := range m.vectors {
		results = append(results, models.Neighbor{ID: id, Distance: cosineDistance(vector, v)})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.vectors, id)
	}
	return nil
}

// Len returns the number of stored vectors
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// cosineDistance is 1 - cos(a, b); a zero vector is at distance 1 from everything
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
