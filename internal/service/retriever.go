package service

import (
	"context"
	"fmt"

	"github.com/skillcapital/coursebot/internal/domain"
	"github.com/skillcapital/coursebot/internal/telemetry"
)

// QueryEmbedder generates a single query embedding.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchRepository performs nearest-neighbor search over the persisted index.
type SearchRepository interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, collection string, limit int) ([]domain.ScoredChunk, error)
}

// RetrieverConfig controls retrieval behavior.
type RetrieverConfig struct {
	Collection    string
	TopK          int
	MinSimilarity float32
}

// Retriever fetches the top-k most similar chunks for a query. It is
// read-only with respect to the index.
type Retriever struct {
	embedder QueryEmbedder
	repo     SearchRepository
	cfg      RetrieverConfig
}

// NewRetriever creates a new Retriever instance.
func NewRetriever(embedder QueryEmbedder, repo SearchRepository, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Retriever{embedder: embedder, repo: repo, cfg: cfg}
}

// Retrieve returns up to TopK chunks above the similarity floor, ordered by
// descending similarity. An empty index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.ScoredChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{
		Collection: r.cfg.Collection,
		Operation:  "retrieve",
	})
	defer span.End()

	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.repo.SearchByEmbedding(ctx, embedding, r.cfg.Collection, r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	filtered := make([]domain.ScoredChunk, 0, len(results))
	for _, res := range results {
		if res.Score < r.cfg.MinSimilarity {
			continue
		}
		filtered = append(filtered, res)
	}
	return filtered, nil
}
