package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/skillcapital/coursebot/internal/domain"
)

// ChunkRepository persists and searches the chunked knowledge index in
// Postgres with pgvector. Cosine distance is used both at index and query
// time.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// Count returns the number of chunks stored under a collection. A non-empty
// collection gates the load-instead-of-build path.
func (r *ChunkRepository) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM course_chunks WHERE collection = $1`,
		collection,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ReplaceCollection swaps the collection's contents in a single transaction:
// either every chunk is committed or none is.
func (r *ChunkRepository) ReplaceCollection(ctx context.Context, collection string, chunks []domain.CourseChunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM course_chunks WHERE collection = $1`, collection); err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO course_chunks
				(id, collection, course, chunk_index, content, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7)`,
			c.ID,
			collection,
			nullableString(c.Course),
			c.ChunkIndex,
			c.Content,
			pgvector.NewVector(c.Embedding),
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SearchByEmbedding returns the limit nearest chunks by cosine similarity,
// descending. Read-only.
func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, collection string, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.pool.Query(ctx,
		`SELECT id, course, chunk_index, content, 1 - (embedding <=> $1) AS score
		 FROM course_chunks
		 WHERE collection = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, collection, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ScoredChunk, 0, limit)
	for rows.Next() {
		var res domain.ScoredChunk
		var course *string
		if err := rows.Scan(&res.Chunk.ID, &course, &res.Chunk.ChunkIndex, &res.Chunk.Content, &res.Score); err != nil {
			return nil, err
		}
		res.Chunk.Collection = collection
		if course != nil {
			res.Chunk.Course = *course
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// AcquireBuildLock takes a Postgres advisory lock for the collection so only
// one index build can write it at a time. The returned func releases the
// lock and its connection.
func (r *ChunkRepository) AcquireBuildLock(ctx context.Context, collection string) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, collection); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	release := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, collection)
		conn.Release()
	}
	return release, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
