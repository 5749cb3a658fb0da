package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/mementolabs/memento/internal/api/handlers"
	"github.com/mementolabs/memento/internal/config"
	"github.com/mementolabs/memento/internal/database"
	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/jobs"
	"github.com/mementolabs/memento/internal/openai"
	"github.com/mementolabs/memento/internal/repository"
	"github.com/mementolabs/memento/internal/server"
	"github.com/mementolabs/memento/internal/service"
	"github.com/mementolabs/memento/internal/storage"
	"github.com/mementolabs/memento/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the memento API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
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
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool)
	turnRepo := repository.NewTurnRepository(pool)

	var embeddingClient service.DocumentEmbeddingClient
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingDimensions: cfg.EmbeddingDim,
		})
	} else {
		log.Println("OPENAI_API_KEY not set: embeddings and generation disabled")
		embeddingClient = &NoOpEmbeddingClient{}
	}

	docSvc := service.NewDocumentService(chunkRepo, embeddingClient, service.ChunkConfig{
		MaxChars: cfg.ChunkSize,
		Overlap:  cfg.ChunkOverlap,
	})

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
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		docSvc.WithUploadStore(s3Client)
		log.Printf("raw upload retention enabled (bucket '%s')", cfg.S3Bucket)
	}

	memorySvc := service.NewMemoryService(turnRepo, embeddingClient)

	var generator service.GenerationClient
	if cfg.HasOpenAI() {
		generator = openai.NewChatClient(cfg.OpenAIAPIKey, cfg.ChatModel).WithDocumentTool(docSvc)
	} else {
		generator = &NoOpGenerator{}
	}

	budgeter := service.NewBudgeter(service.NewTiktokenCounter())

	turnSvc := service.NewTurnService(memorySvc, turnRepo, generator, budgeter, service.TurnConfig{
		SystemPrompt:   cfg.SystemPrompt,
		TokenCeiling:   cfg.TokenCeiling,
		MemoryLimit:    cfg.MemoryLimit,
		DocSearchLimit: cfg.DocSearchLimit,
	}).WithDocumentQuerier(docSvc)

	threadSvc := service.NewThreadService(turnRepo, budgeter)

	var backfillWorker *jobs.Worker
	if cfg.HasOpenAI() {
		processor := jobs.NewBackfillWorker(turnRepo, embeddingClient)
		backfillWorker = jobs.NewWorker(processor, cfg.WorkerPollInterval)
		go backfillWorker.Start(ctx)
		log.Println("embedding backfill worker started")
	}

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:     handlers.NewChatHandler(turnSvc),
		DocumentHandler: handlers.NewDocumentHandler(docSvc),
		ThreadHandler:   handlers.NewThreadHandler(threadSvc),
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

	if backfillWorker != nil {
		backfillWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// NoOpEmbeddingClient stands in when no embedding provider is configured.
// Turns still persist (without embeddings) and retrievals degrade.
type NoOpEmbeddingClient struct{}

func (c *NoOpEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured: OPENAI_API_KEY required")
}

// NoOpGenerator stands in when no generation provider is configured.
type NoOpGenerator struct{}

func (g *NoOpGenerator) Generate(ctx context.Context, userID string, messages []domain.Message) (string, error) {
	return "", errors.New("generation not configured: OPENAI_API_KEY required")
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
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
