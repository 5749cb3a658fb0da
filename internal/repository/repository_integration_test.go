//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/pagination"
	"github.com/mementolabs/memento/internal/testutil"
)

// unitVector builds a 384-dim vector pointing mostly along the given axis,
// so cosine distance between different axes is predictable.
func unitVector(axis int) []float32 {
	v := make([]float32, 384)
	v[axis%384] = 1.0
	return v
}

func chunkFixture(userID, documentID string, index, total int, text string, axis int) domain.DocumentChunk {
	return domain.DocumentChunk{
		DocumentID:  documentID,
		UserID:      userID,
		Filename:    "policy.txt",
		ChunkIndex:  index,
		TotalChunks: total,
		Text:        text,
		Embedding:   unitVector(axis),
	}
}

func TestChunkRepositoryIntegration_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	chunks := []domain.DocumentChunk{
		chunkFixture("alice", "doc-1", 0, 2, "refunds take 14 days", 0),
		chunkFixture("alice", "doc-1", 1, 2, "shipping is free over 50", 10),
	}
	require.NoError(t, repo.UpsertChunks(ctx, chunks))

	count, err := repo.HasDocument(ctx, "alice", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Query closest to axis 0 finds the refund chunk first.
	matches, err := repo.SearchChunks(ctx, "alice", "", unitVector(0), 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "refunds take 14 days", matches[0].Text)
	assert.Equal(t, 0, matches[0].ChunkIndex)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	// Other users see nothing.
	matches, err = repo.SearchChunks(ctx, "bob", "", unitVector(0), 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChunkRepositoryIntegration_UpsertOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	require.NoError(t, repo.UpsertChunks(ctx, []domain.DocumentChunk{
		chunkFixture("alice", "doc-1", 0, 1, "first version", 0),
	}))
	require.NoError(t, repo.UpsertChunks(ctx, []domain.DocumentChunk{
		chunkFixture("alice", "doc-1", 0, 1, "second version", 0),
	}))

	count, err := repo.HasDocument(ctx, "alice", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := repo.SearchChunks(ctx, "alice", "doc-1", unitVector(0), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "second version", matches[0].Text)
}

func TestChunkRepositoryIntegration_DocumentScopedSearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	require.NoError(t, repo.UpsertChunks(ctx, []domain.DocumentChunk{
		chunkFixture("alice", "doc-1", 0, 1, "from the first document", 0),
		chunkFixture("alice", "doc-2", 0, 1, "from the second document", 1),
	}))

	matches, err := repo.SearchChunks(ctx, "alice", "doc-2", unitVector(0), 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "from the second document", matches[0].Text)
}

func TestChunkRepositoryIntegration_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	require.NoError(t, repo.UpsertChunks(ctx, []domain.DocumentChunk{
		chunkFixture("alice", "doc-1", 0, 2, "a", 0),
		chunkFixture("alice", "doc-1", 1, 2, "b", 1),
		chunkFixture("alice", "doc-2", 0, 1, "c", 2),
		chunkFixture("bob", "doc-3", 0, 1, "d", 3),
	}))

	docs, err := repo.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// Another user cannot delete alice's document, even knowing its id.
	deleted, err := repo.DeleteDocument(ctx, "bob", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	deleted, err = repo.DeleteDocument(ctx, "alice", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// Deleting again removes nothing and is not an error.
	deleted, err = repo.DeleteDocument(ctx, "alice", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	docs, err = repo.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "doc-2", docs[0].DocumentID)

	// Bob's catalog is untouched by alice's uploads and deletes.
	docs, err = repo.ListDocuments(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-3", docs[0].DocumentID)
}

func TestTurnRepositoryIntegration_InsertAndSearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewTurnRepository(pool)

	turns := []*domain.Turn{
		{ThreadID: "alice_t1", Role: domain.RoleUser, Text: "I prefer window seats", Embedding: unitVector(0)},
		{ThreadID: "alice_t1", Role: domain.RoleAssistant, Text: "Noted!", Embedding: unitVector(5)},
		{ThreadID: "alice_t2", Role: domain.RoleUser, Text: "different thread", Embedding: unitVector(0)},
	}
	for _, turn := range turns {
		require.NoError(t, repo.Insert(ctx, turn))
	}

	snippets, err := repo.SearchByEmbedding(ctx, "alice_t1", unitVector(0), "book me a flight", 3)
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Equal(t, "I prefer window seats", snippets[0])
	assert.NotContains(t, snippets, "different thread")
}

func TestTurnRepositoryIntegration_SearchExcludesQueryText(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewTurnRepository(pool)

	require.NoError(t, repo.Insert(ctx, &domain.Turn{
		ThreadID: "alice_t1", Role: domain.RoleUser, Text: "book me a flight", Embedding: unitVector(0),
	}))

	snippets, err := repo.SearchByEmbedding(ctx, "alice_t1", unitVector(0), "book me a flight", 3)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestTurnRepositoryIntegration_NullEmbeddingLifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewTurnRepository(pool)

	turn := &domain.Turn{ThreadID: "alice_t1", Role: domain.RoleUser, Text: "stored without embedding"}
	require.NoError(t, repo.Insert(ctx, turn))

	// Invisible to similarity search until backfilled.
	snippets, err := repo.SearchByEmbedding(ctx, "alice_t1", unitVector(0), "other", 3)
	require.NoError(t, err)
	assert.Empty(t, snippets)

	pending, err := repo.GetPendingEmbeddings(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, turn.ID, pending[0].ID)

	require.NoError(t, repo.IncrementEmbedAttempts(ctx, turn.ID))
	require.NoError(t, repo.UpdateEmbedding(ctx, turn.ID, unitVector(0)))

	pending, err = repo.GetPendingEmbeddings(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	snippets, err = repo.SearchByEmbedding(ctx, "alice_t1", unitVector(0), "other", 3)
	require.NoError(t, err)
	assert.Len(t, snippets, 1)
}

func TestTurnRepositoryIntegration_PendingRespectsAttemptBudget(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewTurnRepository(pool)

	turn := &domain.Turn{ThreadID: "alice_t1", Role: domain.RoleUser, Text: "never embeds"}
	require.NoError(t, repo.Insert(ctx, turn))

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementEmbedAttempts(ctx, turn.ID))
	}

	pending, err := repo.GetPendingEmbeddings(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTurnRepositoryIntegration_ListByThreadPagination(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewTurnRepository(pool)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, &domain.Turn{
			ThreadID:  "alice_t1",
			Role:      domain.RoleUser,
			Text:      "message",
			Embedding: unitVector(i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	page, err := repo.ListByThread(ctx, "alice_t1", nil, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	seen := map[string]bool{}
	for _, item := range page.Items {
		seen[item.ID] = true
	}

	cursor, err := pagination.DecodeCursor(page.NextCursor)
	require.NoError(t, err)

	second, err := repo.ListByThread(ctx, "alice_t1", cursor, 10)
	require.NoError(t, err)
	assert.Len(t, second.Items, 3)
	assert.False(t, second.HasMore)
	for _, item := range second.Items {
		assert.False(t, seen[item.ID], "page two repeated turn %s", item.ID)
	}
}

func TestTurnRepositoryIntegration_GetAllByThreadChronological(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewTurnRepository(pool)

	base := time.Now().UTC().Add(-time.Hour)
	texts := []string{"first", "second", "third"}
	for i, text := range texts {
		require.NoError(t, repo.Insert(ctx, &domain.Turn{
			ThreadID:  "alice_t1",
			Role:      domain.RoleUser,
			Text:      text,
			Embedding: unitVector(i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := repo.GetAllByThread(ctx, "alice_t1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, text := range texts {
		assert.Equal(t, text, all[i].Text)
	}
}
