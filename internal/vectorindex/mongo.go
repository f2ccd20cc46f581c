package vectorindex

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rag-document-platform/models"
)

// Mongo uses an Atlas vector search index over {chunk_id, vector} documents
type Mongo struct {
	col       *mongo.Collection
	indexName string
	dimension int
}

func NewMongo(db *mongo.Database, collection, indexName string, dimension int) *Mongo {
	return &Mongo{col: db.Collection(collection), indexName: indexName, dimension: dimension}
}

func (m *Mongo) Upsert(ctx context.Context, id string, vector []float32) error {
	if err := checkDim(m.dimension, vector); err != nil {
		return err
	}
	_, err := m.col.UpdateOne(ctx,
		bson.M{"chunk_id": id},
		bson.M{"$set": bson.M{"chunk_id": id, "vector": vector}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", id, err)
	}
	return nil
}

func (m *Mongo) Search(ctx context.Context, vector []float32, k int) ([]models.Neighbor, error) {
	if err := checkDim(m.dimension, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         m.indexName,
			"path":          "vector",
			"queryVector":   vector,
			"numCandidates": k * 10,
			"limit":         k,
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":      0,
			"chunk_id": 1,
			"score":    bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := m.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var hits []struct {
		ChunkID string  `bson:"chunk_id"`
		Score   float64 `bson:"score"`
	}
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, err
	}

	out := make([]models.Neighbor, len(hits))
	for i, h := range hits {
		// cosine vectorSearchScore is (1 + cos) / 2
		out[i] = models.Neighbor{ID: h.ChunkID, Distance: 2 * (1 - h.Score)}
	}
	return out, nil
}

func (m *Mongo) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := m.col.DeleteMany(ctx, bson.M{"chunk_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}
