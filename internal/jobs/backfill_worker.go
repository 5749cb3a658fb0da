package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/mementolabs/memento/internal/domain"
)

const (
	// MaxRetries is the maximum number of embedding attempts per turn
	MaxRetries = 3

	// batchSize bounds how many pending turns one poll picks up
	batchSize = 50
)

// PendingTurnRepository defines the interface for turns awaiting embeddings
type PendingTurnRepository interface {
	// GetPendingEmbeddings retrieves turns stored without an embedding that
	// still have attempts left
	GetPendingEmbeddings(ctx context.Context, maxAttempts, limit int) ([]*domain.Turn, error)

	// UpdateEmbedding stores the backfilled embedding
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error

	// IncrementEmbedAttempts records a failed attempt
	IncrementEmbedAttempts(ctx context.Context, id string) error
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// BackfillWorker embeds turns that were persisted without an embedding
// because the provider was unavailable at record time. Until backfilled,
// such turns are stored but invisible to memory retrieval.
type BackfillWorker struct {
	repo   PendingTurnRepository
	client EmbeddingClient
}

// NewBackfillWorker creates a new BackfillWorker instance
func NewBackfillWorker(repo PendingTurnRepository, client EmbeddingClient) *BackfillWorker {
	return &BackfillWorker{
		repo:   repo,
		client: client,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *BackfillWorker) ProcessJobs(ctx context.Context) error {
	turns, err := w.repo.GetPendingEmbeddings(ctx, MaxRetries, batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending turns: %w", err)
	}

	if len(turns) == 0 {
		return nil
	}

	log.Printf("Backfilling embeddings for %d turns", len(turns))

	for _, turn := range turns {
		if err := w.processTurn(ctx, turn); err != nil {
			log.Printf("Error backfilling turn %s: %v", turn.ID, err)
		}
	}

	return nil
}

func (w *BackfillWorker) processTurn(ctx context.Context, turn *domain.Turn) error {
	embedding, err := w.client.GenerateEmbedding(ctx, turn.Text)
	if err != nil {
		log.Printf("Turn %s embedding attempt failed: %v", turn.ID, err)
		if incErr := w.repo.IncrementEmbedAttempts(ctx, turn.ID); incErr != nil {
			return fmt.Errorf("failed to increment embed attempts: %w", incErr)
		}
		return err
	}

	if err := w.repo.UpdateEmbedding(ctx, turn.ID, embedding); err != nil {
		return fmt.Errorf("failed to store backfilled embedding: %w", err)
	}

	log.Printf("Turn %s embedding backfilled", turn.ID)
	return nil
}
