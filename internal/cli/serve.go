package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/skillcapital/coursebot/internal/api/handlers"
	"github.com/skillcapital/coursebot/internal/config"
	"github.com/skillcapital/coursebot/internal/jobs"
	"github.com/skillcapital/coursebot/internal/repository"
	"github.com/skillcapital/coursebot/internal/server"
	"github.com/skillcapital/coursebot/internal/service"
	"github.com/skillcapital/coursebot/internal/session"
	"github.com/skillcapital/coursebot/internal/telemetry"
)

const reaperInterval = time.Minute

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatbot server",
		Long:  "Start the course advisor server, building the knowledge index on first run",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

// applyPortFlag overrides the configured port only when the flag was set on
// the command line, so an explicit -p 8080 beats COURSEBOT_PORT too.
func applyPortFlag(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetString("port")
		cfg.Port = port
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	applyPortFlag(cmd, cfg)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

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

	chunkRepo := repository.NewChunkRepository(pool)

	indexer := service.NewIndexer(source, newChunker(cfg), oaClient, chunkRepo, service.IndexerConfig{
		Collection: cfg.Collection,
		BatchSize:  cfg.EmbedBatchSize,
	})
	count, err := indexer.BuildOrLoad(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare knowledge index: %w", err)
	}
	log.Printf("knowledge index ready (%d chunks in collection %q)", count, cfg.Collection)

	retriever := service.NewRetriever(oaClient, chunkRepo, service.RetrieverConfig{
		Collection:    cfg.Collection,
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarity,
	})

	sessions := session.NewStore(cfg.MaxSessions)
	reaper := jobs.NewWorker(jobs.NewSessionReaper(sessions, cfg.SessionIdleTTL), reaperInterval)
	go reaper.Start(ctx)
	log.Println("session reaper started")

	advisor := service.NewAdvisor(retriever, oaClient, sessions)

	router := server.NewRouter(server.RouterConfig{
		ChatHandler: handlers.NewChatHandler(advisor),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
