package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/skillcapital/coursebot/internal/config"
	"github.com/skillcapital/coursebot/internal/repository"
	"github.com/skillcapital/coursebot/internal/service"
	"github.com/skillcapital/coursebot/internal/session"
)

// ChatCmd returns the chat command, an interactive prompt against the
// advisor pipeline without going through HTTP.
func ChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the advisor from the terminal",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
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

	oaClient, err := newOpenAIClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create openai client: %w", err)
	}

	chunkRepo := repository.NewChunkRepository(pool)

	source, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}
	indexer := service.NewIndexer(source, newChunker(cfg), oaClient, chunkRepo, service.IndexerConfig{
		Collection: cfg.Collection,
		BatchSize:  cfg.EmbedBatchSize,
	})
	if _, err := indexer.BuildOrLoad(ctx); err != nil {
		return fmt.Errorf("failed to prepare knowledge index: %w", err)
	}

	retriever := service.NewRetriever(oaClient, chunkRepo, service.RetrieverConfig{
		Collection:    cfg.Collection,
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarity,
	})
	advisor := service.NewAdvisor(retriever, oaClient, session.NewStore(cfg.MaxSessions))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "SkillCapital course advisor. Type 'exit' to leave.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	sessionID := ""
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		switch strings.ToLower(query) {
		case "exit", "quit", "bye":
			fmt.Fprintln(out, "Bot: Goodbye!")
			return nil
		}

		reply, sid, err := advisor.Answer(ctx, query, sessionID)
		if err != nil {
			fmt.Fprintf(out, "Bot: something went wrong: %v\n", err)
			continue
		}
		sessionID = sid
		fmt.Fprintf(out, "Bot: %s\n", reply)
	}
	return scanner.Err()
}
