package service

import (
	"context"
	"log"

	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/telemetry"
)

// MemoryEmbeddingClient generates embeddings for turn text.
type MemoryEmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// TurnIndex is the conversational slice of the vector index the memory
// service needs.
type TurnIndex interface {
	Insert(ctx context.Context, t *domain.Turn) error
	SearchByEmbedding(ctx context.Context, threadID string, embedding []float32, queryText string, limit int) ([]string, error)
}

// MemoryService records conversation turns and retrieves the ones most
// relevant to a new utterance. Retrieval errors are the caller's to absorb;
// a degraded turn beats a failed one.
type MemoryService struct {
	repo      TurnIndex
	embedding MemoryEmbeddingClient
}

func NewMemoryService(repo TurnIndex, embedding MemoryEmbeddingClient) *MemoryService {
	return &MemoryService{repo: repo, embedding: embedding}
}

// Record persists one turn. When the embedding provider fails, the turn is
// stored without an embedding and the backfill worker fills it in later, so
// a flaky provider never loses conversation history.
func (s *MemoryService) Record(ctx context.Context, threadID string, role domain.Role, text string) error {
	ctx, span := telemetry.StartSpan(ctx, "memory.record", telemetry.SpanAttributes{
		ThreadID:  threadID,
		Operation: "record",
	})
	defer span.End()

	turn := &domain.Turn{
		ThreadID: threadID,
		Role:     role,
		Text:     text,
	}
	if err := domain.ValidateTurn(turn); err != nil {
		span.SetError(err)
		return err
	}

	embedding, err := s.embedding.GenerateEmbedding(ctx, text)
	if err != nil {
		log.Printf("memory: embedding failed for thread %s, storing turn without embedding: %v", threadID, err)
	} else {
		turn.Embedding = embedding
	}

	if err := s.repo.Insert(ctx, turn); err != nil {
		span.SetError(err)
		return domain.IndexError(err)
	}
	return nil
}

// Retrieve returns the texts of prior turns in the thread most similar to
// queryText, best match first. The triggering utterance never retrieves
// itself.
func (s *MemoryService) Retrieve(ctx context.Context, threadID, queryText string, limit int) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "memory.retrieve", telemetry.SpanAttributes{
		ThreadID:  threadID,
		Operation: "retrieve",
	})
	defer span.End()

	embedding, err := s.embedding.GenerateEmbedding(ctx, queryText)
	if err != nil {
		span.SetError(err)
		return nil, domain.EmbeddingError(err)
	}

	snippets, err := s.repo.SearchByEmbedding(ctx, threadID, embedding, queryText, limit)
	if err != nil {
		span.SetError(err)
		return nil, domain.IndexError(err)
	}
	return snippets, nil
}
