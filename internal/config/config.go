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

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"memento-uploads"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	ChatModel    string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	// EmbeddingDim must match the vector column width in the migrations.
	EmbeddingDim int `envconfig:"EMBEDDING_DIM" default:"384"`

	// Prompt assembly knobs.
	TokenCeiling   int    `envconfig:"TOKEN_CEILING" default:"10000"`
	SystemPrompt   string `envconfig:"SYSTEM_PROMPT" default:"You are a helpful assistant with long-term memory of this conversation."`
	MemoryLimit    int    `envconfig:"MEMORY_LIMIT" default:"3"`
	DocSearchLimit int    `envconfig:"DOC_SEARCH_LIMIT" default:"5"`

	// Document ingestion knobs.
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"50"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"10s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("MEMENTO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
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
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
