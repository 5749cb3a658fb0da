package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/pagination"
)

// TurnRepository is the conversational partition of the vector index.
// Turns are append-only; reads are always scoped by thread_id.
type TurnRepository struct {
	db dbtx
}

func NewTurnRepository(pool *pgxpool.Pool) *TurnRepository {
	return &TurnRepository{db: pool}
}

// Insert writes a single turn. A nil embedding is stored as NULL and picked
// up later by the backfill worker.
func (r *TurnRepository) Insert(ctx context.Context, t *domain.Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var embedding any
	if t.Embedding != nil {
		embedding = pgvector.NewVector(t.Embedding)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO conversation_turns (id, thread_id, role, text, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.ThreadID, string(t.Role), t.Text, embedding, t.CreatedAt,
	)
	return err
}

// SearchByEmbedding returns the texts of the most similar prior turns in the
// thread, excluding any turn whose text equals the query verbatim so the
// triggering utterance does not retrieve itself.
func (r *TurnRepository) SearchByEmbedding(ctx context.Context, threadID string, embedding []float32, queryText string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 3
	}

	rows, err := r.db.Query(ctx,
		`SELECT text
		 FROM conversation_turns
		 WHERE thread_id = $1 AND embedding IS NOT NULL AND text <> $2
		 ORDER BY embedding <=> $3
		 LIMIT $4`,
		threadID, queryText, pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snippets := make([]string, 0, limit)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		snippets = append(snippets, text)
	}
	return snippets, rows.Err()
}

// TurnPageResult is one page of a thread's history, newest first.
type TurnPageResult struct {
	Items      []*domain.Turn
	NextCursor string
	HasMore    bool
}

// ListByThread pages through a thread's turns, newest first.
func (r *TurnRepository) ListByThread(ctx context.Context, threadID string, cursor *pagination.Cursor, limit int) (*TurnPageResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, thread_id, role, text, created_at
			 FROM conversation_turns
			 WHERE thread_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			threadID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, thread_id, role, text, created_at
			 FROM conversation_turns
			 WHERE thread_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			threadID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanTurnRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &TurnPageResult{Items: items, NextCursor: nextCursor, HasMore: hasMore}, nil
}

// GetAllByThread returns the full thread history in chronological order.
// Used for export and stats, where the whole thread is wanted.
func (r *TurnRepository) GetAllByThread(ctx context.Context, threadID string) ([]*domain.Turn, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, thread_id, role, text, created_at
		 FROM conversation_turns
		 WHERE thread_id = $1
		 ORDER BY created_at ASC, id ASC`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTurnRows(rows)
}

// GetPendingEmbeddings claims turns recorded without an embedding that have
// not exhausted their retry budget.
func (r *TurnRepository) GetPendingEmbeddings(ctx context.Context, maxAttempts, limit int) ([]*domain.Turn, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, thread_id, role, text, created_at
		 FROM conversation_turns
		 WHERE embedding IS NULL AND embed_attempts < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTurnRows(rows)
}

// UpdateEmbedding stores a backfilled embedding for a turn.
func (r *TurnRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := r.db.Exec(ctx,
		`UPDATE conversation_turns SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id,
	)
	return err
}

// IncrementEmbedAttempts records one failed embedding attempt for a turn.
func (r *TurnRepository) IncrementEmbedAttempts(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE conversation_turns SET embed_attempts = embed_attempts + 1 WHERE id = $1`,
		id,
	)
	return err
}

func scanTurnRows(rows pgx.Rows) ([]*domain.Turn, error) {
	var results []*domain.Turn
	for rows.Next() {
		var t domain.Turn
		var role string
		if err := rows.Scan(&t.ID, &t.ThreadID, &role, &t.Text, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Role = domain.Role(role)
		results = append(results, &t)
	}
	return results, rows.Err()
}
