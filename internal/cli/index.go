package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/skillcapital/coursebot/internal/config"
	"github.com/skillcapital/coursebot/internal/repository"
	"github.com/skillcapital/coursebot/internal/service"
)

// IndexCmd returns the index command
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the knowledge index",
		Long:  "Chunk and embed the knowledge corpus into the vector index, skipping the build when the collection is already populated",
		RunE:  runIndex,
	}

	cmd.Flags().Bool("force", false, "Rebuild the collection even if it is already populated")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	oaClient, err := newOpenAIClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create openai client: %w", err)
	}

	source, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}

	indexer := service.NewIndexer(source, newChunker(cfg), oaClient, repository.NewChunkRepository(pool), service.IndexerConfig{
		Collection: cfg.Collection,
		BatchSize:  cfg.EmbedBatchSize,
	})

	force, _ := cmd.Flags().GetBool("force")
	var count int
	if force {
		count, err = indexer.Rebuild(ctx)
	} else {
		count, err = indexer.BuildOrLoad(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	log.Printf("collection %q holds %d chunks", cfg.Collection, count)
	return nil
}
