package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mementolabs/memento/internal/config"
	"github.com/mementolabs/memento/internal/database"
	"github.com/mementolabs/memento/internal/openai"
	"github.com/mementolabs/memento/internal/repository"
	"github.com/mementolabs/memento/internal/service"
)

// AskCmd returns the ask command for querying indexed documents from the
// terminal without going through the HTTP API.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against indexed documents",
		Long:  "Embed the question and print the most similar document chunks for a user",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().StringP("user", "u", "", "User whose documents to search (required)")
	cmd.MarkFlagRequired("user")
	cmd.Flags().StringP("document", "d", "", "Restrict the search to one document id")
	cmd.Flags().IntP("limit", "n", 5, "Maximum number of chunks to return")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY required for querying")
	}

	userID, _ := cmd.Flags().GetString("user")
	documentID, _ := cmd.Flags().GetString("document")
	limit, _ := cmd.Flags().GetInt("limit")
	question := strings.Join(args, " ")

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

	matches, err := docSvc.QueryDocuments(ctx, userID, question, documentID, limit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(matches) == 0 {
		fmt.Println("no matching chunks found")
		return nil
	}

	for _, m := range matches {
		fmt.Printf("[%s, chunk %d, score %.3f]\n%s\n\n", m.Filename, m.ChunkIndex, m.Score, m.Text)
	}
	return nil
}
