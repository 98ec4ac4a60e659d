package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL  string `envconfig:"DATABASE_URL" required:"true"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" required:"true"`

	// Knowledge corpus: a local file by default, or an S3 object when the
	// S3 settings are present.
	KnowledgeFile  string `envconfig:"KNOWLEDGE_FILE" default:"knowledge.txt"`
	Collection     string `envconfig:"COLLECTION" default:"skillcapital_knowledge"`
	ChunkTokens    int    `envconfig:"CHUNK_TOKENS" default:"300"`
	OverlapTokens  int    `envconfig:"CHUNK_OVERLAP_TOKENS" default:"60"`
	EmbedBatchSize int    `envconfig:"EMBED_BATCH_SIZE" default:"64"`

	TopK          int     `envconfig:"TOP_K" default:"5"`
	MinSimilarity float32 `envconfig:"MIN_SIMILARITY" default:"0.2"`

	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	ChatModel      string `envconfig:"CHAT_MODEL" default:"gpt-3.5-turbo"`

	OpenAITimeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	OpenAIRetries int           `envconfig:"OPENAI_RETRIES" default:"3"`

	MaxSessions    int           `envconfig:"MAX_SESSIONS" default:"1000"`
	SessionIdleTTL time.Duration `envconfig:"SESSION_IDLE_TTL" default:"1h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Key       string `envconfig:"S3_KNOWLEDGE_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("COURSEBOT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Bucket != "" && c.S3Key != ""
}
