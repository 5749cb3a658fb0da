package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/extract"
	"github.com/mementolabs/memento/internal/telemetry"
)

// embedConcurrency bounds the parallel embedding calls during ingestion.
const embedConcurrency = 4

// DocumentEmbeddingClient generates embeddings for document chunks.
type DocumentEmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkIndex is the document slice of the vector index.
type ChunkIndex interface {
	UpsertChunks(ctx context.Context, chunks []domain.DocumentChunk) error
	SearchChunks(ctx context.Context, userID, documentID string, embedding []float32, limit int) ([]*domain.ChunkMatch, error)
	HasDocument(ctx context.Context, userID, documentID string) (int, error)
	ListDocuments(ctx context.Context, userID string) ([]*domain.DocumentInfo, error)
	DeleteDocument(ctx context.Context, userID, documentID string) (int, error)
}

// UploadStore retains raw uploads alongside the index. Optional; a nil
// store disables retention.
type UploadStore interface {
	Put(ctx context.Context, key string, raw []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// DocumentService is the ingestion and query pipeline for uploaded files.
type DocumentService struct {
	repo      ChunkIndex
	embedding DocumentEmbeddingClient
	uploads   UploadStore
	chunkCfg  ChunkConfig
}

func NewDocumentService(repo ChunkIndex, embedding DocumentEmbeddingClient, chunkCfg ChunkConfig) *DocumentService {
	if chunkCfg.MaxChars <= 0 {
		chunkCfg = DefaultChunkConfig()
	}
	return &DocumentService{
		repo:      repo,
		embedding: embedding,
		chunkCfg:  chunkCfg,
	}
}

// WithUploadStore enables raw upload retention and returns the service.
func (s *DocumentService) WithUploadStore(store UploadStore) *DocumentService {
	s.uploads = store
	return s
}

// IngestResult reports the outcome of one upload.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	Duplicate  bool   `json:"duplicate"`
}

// DocumentID derives the stable identity of a document from its raw bytes.
// The same bytes always produce the same ID, regardless of filename.
func DocumentID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Ingest validates, extracts, chunks, embeds and indexes one uploaded file.
// Re-uploading bytes the user already has indexed is a no-op reported as a
// duplicate. Either the whole document is usable after ingestion or the
// caller gets a structured error naming the failed stage.
func (s *DocumentService) Ingest(ctx context.Context, userID, filename string, raw []byte) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "document.ingest", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "ingest",
	})
	defer span.End()

	if userID == "" || filename == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if !extract.SupportedExtension(filename) {
		return nil, domain.ErrUnsupportedFormat
	}
	if len(raw) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	documentID := DocumentID(raw)

	existing, err := s.repo.HasDocument(ctx, userID, documentID)
	if err != nil {
		span.SetError(err)
		return nil, domain.IndexError(err)
	}
	if existing > 0 {
		log.Printf("document: %s already indexed for user %s, skipping re-ingestion", documentID, userID)
		return &IngestResult{
			DocumentID: documentID,
			Filename:   filename,
			ChunkCount: existing,
			Duplicate:  true,
		}, nil
	}

	text, err := extract.Text(raw, filename)
	if err != nil {
		span.SetError(err)
		return nil, domain.ExtractionError(err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	pieces := ChunkText(text, s.chunkCfg)
	chunks := make([]domain.DocumentChunk, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, piece := range pieces {
		g.Go(func() error {
			embedding, err := s.embedding.GenerateEmbedding(gctx, piece)
			if err != nil {
				return err
			}
			chunks[i] = domain.DocumentChunk{
				DocumentID:  documentID,
				UserID:      userID,
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(pieces),
				Text:        piece,
				Embedding:   embedding,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetError(err)
		return nil, domain.EmbeddingError(err)
	}

	if err := s.repo.UpsertChunks(ctx, chunks); err != nil {
		span.SetError(err)
		return nil, domain.IndexError(err)
	}

	if s.uploads != nil {
		key := UploadKey(userID, documentID)
		if err := s.uploads.Put(ctx, key, raw, contentTypeFor(filename)); err != nil {
			log.Printf("document: failed to retain raw upload %s: %v", key, err)
		}
	}

	return &IngestResult{
		DocumentID: documentID,
		Filename:   filename,
		ChunkCount: len(chunks),
	}, nil
}

// QueryDocuments returns the chunks most relevant to the question across
// the user's documents, or within one document when documentID is set.
func (s *DocumentService) QueryDocuments(ctx context.Context, userID, question, documentID string, limit int) ([]*domain.ChunkMatch, error) {
	ctx, span := telemetry.StartSpan(ctx, "document.query", telemetry.SpanAttributes{
		UserID:     userID,
		DocumentID: documentID,
		Operation:  "query",
	})
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}

	embedding, err := s.embedding.GenerateEmbedding(ctx, question)
	if err != nil {
		span.SetError(err)
		return nil, domain.EmbeddingError(err)
	}

	matches, err := s.repo.SearchChunks(ctx, userID, documentID, embedding, limit)
	if err != nil {
		span.SetError(err)
		return nil, domain.IndexError(err)
	}
	return matches, nil
}

// ListDocuments returns the user's indexed documents.
func (s *DocumentService) ListDocuments(ctx context.Context, userID string) ([]*domain.DocumentInfo, error) {
	docs, err := s.repo.ListDocuments(ctx, userID)
	if err != nil {
		return nil, domain.IndexError(err)
	}
	return docs, nil
}

// DeleteDocument removes all of the document's chunks and returns how many
// were removed. Deleting an unknown document removes zero chunks and
// succeeds.
func (s *DocumentService) DeleteDocument(ctx context.Context, userID, documentID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "document.delete", telemetry.SpanAttributes{
		UserID:     userID,
		DocumentID: documentID,
		Operation:  "delete",
	})
	defer span.End()

	deleted, err := s.repo.DeleteDocument(ctx, userID, documentID)
	if err != nil {
		span.SetError(err)
		return 0, domain.IndexError(err)
	}

	if s.uploads != nil && deleted > 0 {
		key := UploadKey(userID, documentID)
		if err := s.uploads.Delete(ctx, key); err != nil {
			log.Printf("document: failed to delete retained upload for %s: %v", documentID, err)
		}
	}

	return deleted, nil
}

// DownloadURL returns a presigned URL for the retained raw upload of one of
// the user's indexed documents. Unknown documents, and documents indexed
// while retention was disabled, report not-found.
func (s *DocumentService) DownloadURL(ctx context.Context, userID, documentID string) (string, error) {
	if s.uploads == nil {
		return "", domain.ErrDocumentNotFound
	}

	count, err := s.repo.HasDocument(ctx, userID, documentID)
	if err != nil {
		return "", domain.IndexError(err)
	}
	if count == 0 {
		return "", domain.ErrDocumentNotFound
	}

	url, err := s.uploads.GenerateDownloadURL(ctx, UploadKey(userID, documentID))
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to presign download", err)
	}
	return url, nil
}

// UploadKey is the object key a retained raw upload is stored under. The
// key omits the filename so deletion needs only the document identity.
func UploadKey(userID, documentID string) string {
	return userID + "_" + documentID
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "text/plain"
	}
}
