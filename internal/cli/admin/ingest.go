package admin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mementolabs/memento/internal/config"
	"github.com/mementolabs/memento/internal/database"
	"github.com/mementolabs/memento/internal/openai"
	"github.com/mementolabs/memento/internal/repository"
	"github.com/mementolabs/memento/internal/service"
)

// IngestCmd returns the ingest command for loading documents from disk
// without going through the HTTP API.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a document from disk",
		Long:  "Extract, chunk, embed and index a local pdf, docx or txt file for a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().StringP("user", "u", "", "User the document belongs to (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY required for ingestion")
	}

	userID, _ := cmd.Flags().GetString("user")

	path := args[0]
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	embeddingClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingDimensions: cfg.EmbeddingDim,
	})

	docSvc := service.NewDocumentService(
		repository.NewChunkRepository(pool),
		embeddingClient,
		service.ChunkConfig{MaxChars: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
	)

	result, err := docSvc.Ingest(ctx, userID, filepath.Base(path), raw)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if result.Duplicate {
		fmt.Printf("already indexed: %s (%d chunks)\n", result.DocumentID, result.ChunkCount)
		return nil
	}
	fmt.Printf("indexed %s as %s (%d chunks)\n", result.Filename, result.DocumentID, result.ChunkCount)
	return nil
}
