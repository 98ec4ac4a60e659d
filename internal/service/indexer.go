package service

import (
	"context"
	"fmt"
	"log"

	"github.com/skillcapital/coursebot/internal/domain"
	"github.com/skillcapital/coursebot/internal/telemetry"
)

// BatchEmbedder generates embeddings for a batch of texts, in order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexRepository persists the chunk index. ReplaceCollection swaps the
// collection in one transaction, so it commits the whole collection or
// nothing.
type IndexRepository interface {
	Count(ctx context.Context, collection string) (int, error)
	ReplaceCollection(ctx context.Context, collection string, chunks []domain.CourseChunk) error
	AcquireBuildLock(ctx context.Context, collection string) (release func(), err error)
}

// SourceReader reads the raw knowledge corpus.
type SourceReader interface {
	Read(ctx context.Context) (string, error)
}

// IndexerConfig controls index builds.
type IndexerConfig struct {
	Collection string
	BatchSize  int
}

// Indexer is the single writer to the chunk index. It chunks the knowledge
// corpus, embeds it in batches, and persists the result.
type Indexer struct {
	source   SourceReader
	chunker  *Chunker
	embedder BatchEmbedder
	repo     IndexRepository
	cfg      IndexerConfig
}

// NewIndexer creates a new Indexer instance.
func NewIndexer(source SourceReader, chunker *Chunker, embedder BatchEmbedder, repo IndexRepository, cfg IndexerConfig) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Indexer{
		source:   source,
		chunker:  chunker,
		embedder: embedder,
		repo:     repo,
		cfg:      cfg,
	}
}

// BuildOrLoad builds the index unless the collection is already populated,
// in which case it loads without a single embedding call. Returns the number
// of indexed chunks.
func (ix *Indexer) BuildOrLoad(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.BuildOrLoad", telemetry.SpanAttributes{
		Collection: ix.cfg.Collection,
		Operation:  "index",
	})
	defer span.End()

	// A missing corpus is a configuration error surfaced before any
	// embedding spend.
	text, err := ix.source.Read(ctx)
	if err != nil {
		return 0, err
	}

	existing, err := ix.repo.Count(ctx, ix.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect collection %q: %w", ix.cfg.Collection, err)
	}
	if existing > 0 {
		log.Printf("indexer: loading existing collection %q (%d chunks)", ix.cfg.Collection, existing)
		return existing, nil
	}

	return ix.build(ctx, text, false)
}

// Rebuild re-chunks and re-embeds the corpus unconditionally. The previous
// collection stays live until ReplaceCollection swaps it out, so a failed
// rebuild leaves the index untouched.
func (ix *Indexer) Rebuild(ctx context.Context) (int, error) {
	text, err := ix.source.Read(ctx)
	if err != nil {
		return 0, err
	}
	return ix.build(ctx, text, true)
}

func (ix *Indexer) build(ctx context.Context, text string, force bool) (int, error) {
	release, err := ix.repo.AcquireBuildLock(ctx, ix.cfg.Collection)
	if err != nil {
		return 0, domain.NewDomainErrorWithCause(domain.ErrCodeIndexing, "failed to acquire build lock", err)
	}
	defer release()

	// Another builder may have finished while we waited on the lock. A
	// forced rebuild replaces the collection regardless.
	if !force {
		existing, err := ix.repo.Count(ctx, ix.cfg.Collection)
		if err != nil {
			return 0, fmt.Errorf("failed to inspect collection %q: %w", ix.cfg.Collection, err)
		}
		if existing > 0 {
			log.Printf("indexer: collection %q built concurrently (%d chunks)", ix.cfg.Collection, existing)
			return existing, nil
		}
	}

	chunks := ix.chunker.Chunk(text, ix.cfg.Collection)
	if len(chunks) == 0 {
		return 0, domain.NewDomainError(domain.ErrCodeIndexing, "knowledge corpus produced no chunks")
	}
	log.Printf("indexer: chunked corpus into %d chunks", len(chunks))

	// Embed everything before any write: an embedding failure must not
	// leave a partially written collection behind.
	for start := 0; start < len(chunks); start += ix.cfg.BatchSize {
		end := start + ix.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, domain.NewDomainErrorWithCause(domain.ErrCodeIndexing, "failed to embed chunk batch", err)
		}
		for i := range vectors {
			chunks[start+i].Embedding = vectors[i]
		}
	}

	if err := ix.repo.ReplaceCollection(ctx, ix.cfg.Collection, chunks); err != nil {
		return 0, domain.NewDomainErrorWithCause(domain.ErrCodeIndexing, "failed to persist collection", err)
	}

	log.Printf("indexer: built collection %q (%d chunks)", ix.cfg.Collection, len(chunks))
	return len(chunks), nil
}
