package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mementolabs/memento/internal/domain"
)

// ChunkRepository is the document partition of the vector index. Every read
// and delete is scoped by user_id; cross-user access is impossible at the
// SQL level.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

// UpsertChunks writes a document's chunk set. Re-inserting the same
// (user_id, document_id, chunk_index) overwrites in place, so a partial
// earlier write is repaired rather than duplicated.
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(id, document_id, user_id, filename, chunk_index, total_chunks, text, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (user_id, document_id, chunk_index)
			 DO UPDATE SET filename = EXCLUDED.filename,
			               total_chunks = EXCLUDED.total_chunks,
			               text = EXCLUDED.text,
			               embedding = EXCLUDED.embedding`,
			uuid.NewString(),
			c.DocumentID,
			c.UserID,
			c.Filename,
			c.ChunkIndex,
			c.TotalChunks,
			c.Text,
			pgvector.NewVector(c.Embedding),
			createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SearchChunks returns the most similar chunks for the user, optionally
// restricted to one document, ordered by descending similarity.
func (r *ChunkRepository) SearchChunks(ctx context.Context, userID string, documentID string, embedding []float32, limit int) ([]*domain.ChunkMatch, error) {
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(embedding)

	query := `
		SELECT text, filename, chunk_index, 1.0 / (1.0 + (embedding <=> $1)) AS score
		FROM document_chunks
		WHERE user_id = $2 AND embedding IS NOT NULL`
	args := []any{vec, userID}

	if documentID != "" {
		query += ` AND document_id = $3 ORDER BY embedding <=> $1 LIMIT $4`
		args = append(args, documentID, limit)
	} else {
		query += ` ORDER BY embedding <=> $1 LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.ChunkMatch, 0, limit)
	for rows.Next() {
		var m domain.ChunkMatch
		if err := rows.Scan(&m.Text, &m.Filename, &m.ChunkIndex, &m.Score); err != nil {
			return nil, err
		}
		results = append(results, &m)
	}
	return results, rows.Err()
}

// HasDocument reports whether the user already has indexed chunks for the
// document. Used for idempotent re-ingestion.
func (r *ChunkRepository) HasDocument(ctx context.Context, userID, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE user_id = $1 AND document_id = $2`,
		userID, documentID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListDocuments returns the user's documents, deduplicated across chunks.
func (r *ChunkRepository) ListDocuments(ctx context.Context, userID string) ([]*domain.DocumentInfo, error) {
	rows, err := r.db.Query(ctx,
		`SELECT document_id, MIN(filename), COUNT(*)
		 FROM document_chunks
		 WHERE user_id = $1
		 GROUP BY document_id
		 ORDER BY MIN(created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.DocumentInfo
	for rows.Next() {
		var d domain.DocumentInfo
		if err := rows.Scan(&d.DocumentID, &d.Filename, &d.ChunkCount); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes every chunk of the document owned by the user and
// returns the number of chunks removed. Deleting a document that does not
// exist deletes zero rows and is not an error.
func (r *ChunkRepository) DeleteDocument(ctx context.Context, userID, documentID string) (int, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE user_id = $1 AND document_id = $2`,
		userID, documentID,
	)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}
