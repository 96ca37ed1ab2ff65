package search

import (
	"context"
	"errors"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "documents"

// errNoEmbedder is returned if chromem ever tries to embed text itself.
// Every document arrives with its embedding already computed.
var errNoEmbedder = errors.New("documents must carry a precomputed embedding")

// vectorStore keeps one 2-D point per document for neighbour queries.
type vectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func newVectorStore() (*vectorStore, error) {
	db := chromem.NewDB()
	ef := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedder }

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &vectorStore{db: db, collection: col}, nil
}

// point returns the first embedding row as float32, or false when the
// document has no usable direction.
func point(embedding [][]float64) ([]float32, bool) {
	if len(embedding) == 0 || len(embedding[0]) == 0 {
		return nil, false
	}
	vec := make([]float32, len(embedding[0]))
	nonZero := false
	for i, x := range embedding[0] {
		vec[i] = float32(x)
		if x != 0 {
			nonZero = true
		}
	}
	return vec, nonZero
}

// Upsert replaces the point for id. Documents without a usable point are
// removed from the store.
func (s *vectorStore) Upsert(ctx context.Context, id, title string, embedding [][]float64) error {
	vec, ok := point(embedding)
	if !ok {
		return s.collection.Delete(ctx, nil, nil, id)
	}
	return s.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   title,
		Metadata:  map[string]string{"title": title},
		Embedding: vec,
	})
}

// Nearest returns up to limit ids closest to embedding by cosine similarity.
func (s *vectorStore) Nearest(ctx context.Context, embedding [][]float64, limit int) ([]chromem.Result, error) {
	vec, ok := point(embedding)
	if !ok {
		return nil, nil
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem-go requires nResults <= collection size.
	if limit > count {
		limit = count
	}
	results, err := s.collection.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	return results, nil
}

func (s *vectorStore) Count() int {
	return s.collection.Count()
}
