package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/skillcapital/coursebot/internal/config"
	"github.com/skillcapital/coursebot/internal/openai"
	"github.com/skillcapital/coursebot/internal/service"
	"github.com/skillcapital/coursebot/internal/storage"
)

// buildSource picks the knowledge corpus reader: an S3 object when the S3
// settings are present, the local file otherwise.
func buildSource(ctx context.Context, cfg *config.Config) (service.SourceReader, error) {
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return service.S3Source{Client: s3Client, Key: cfg.S3Key}, nil
	}
	return service.FileSource{Path: cfg.KnowledgeFile}, nil
}

func newOpenAIClient(cfg *config.Config) (*openai.Client, error) {
	return openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: openailib.EmbeddingModel(cfg.EmbeddingModel),
		ChatModel:      cfg.ChatModel,
		Timeout:        cfg.OpenAITimeout,
		MaxRetries:     cfg.OpenAIRetries,
	})
}

// newChunker builds the corpus chunker, counting tokens where the encoding
// is available and falling back to rune counting.
func newChunker(cfg *config.Config) *service.Chunker {
	length, err := service.TokenLength()
	if err != nil {
		log.Printf("token encoding unavailable, falling back to rune lengths: %v", err)
		length = service.RuneLength
	}
	return service.NewChunker(cfg.ChunkTokens, cfg.OverlapTokens, length)
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else {
		log.Printf("migrations: database at version %d", version)
	}

	return nil
}
