package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mementolabs/memento/internal/api"
	"github.com/mementolabs/memento/internal/api/middleware"
	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/service"
)

// maxUploadBytes caps one uploaded file. Multipart forms above this are
// rejected before extraction.
const maxUploadBytes = 32 << 20

// DocumentPipeline is the document service surface the handler needs.
type DocumentPipeline interface {
	Ingest(ctx context.Context, userID, filename string, raw []byte) (*service.IngestResult, error)
	QueryDocuments(ctx context.Context, userID, question, documentID string, limit int) ([]*domain.ChunkMatch, error)
	ListDocuments(ctx context.Context, userID string) ([]*domain.DocumentInfo, error)
	DeleteDocument(ctx context.Context, userID, documentID string) (int, error)
	DownloadURL(ctx context.Context, userID, documentID string) (string, error)
}

type DocumentHandler struct {
	svc DocumentPipeline
}

func NewDocumentHandler(svc DocumentPipeline) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type QueryDocumentsRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type QueryDocumentsResponse struct {
	Matches  []*domain.ChunkMatch `json:"matches"`
	Degraded bool                 `json:"degraded"`
}

type DeleteDocumentResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// Upload ingests one multipart file upload.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.svc.Ingest(r.Context(), userID, header.Filename, raw)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	api.Success(w, status, result)
}

// Query answers a question against the user's indexed documents. A search
// failure is reported as a degraded empty result, not an error.
func (h *DocumentHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req QueryDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	matches, err := h.svc.QueryDocuments(r.Context(), userID, req.Question, req.DocumentID, req.Limit)
	if err != nil {
		if domainErr, ok := err.(*domain.DomainError); ok && domainErr.Code == domain.ErrCodeValidation {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, QueryDocumentsResponse{Matches: []*domain.ChunkMatch{}, Degraded: true})
		return
	}
	if matches == nil {
		matches = []*domain.ChunkMatch{}
	}

	api.Success(w, http.StatusOK, QueryDocumentsResponse{Matches: matches})
}

// List returns the caller's indexed documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docs, err := h.svc.ListDocuments(r.Context(), userID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if docs == nil {
		docs = []*domain.DocumentInfo{}
	}

	api.Success(w, http.StatusOK, docs)
}

type DownloadDocumentResponse struct {
	DocumentID  string `json:"document_id"`
	DownloadURL string `json:"download_url"`
}

// Download returns a short-lived presigned URL for the retained raw upload.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	url, err := h.svc.DownloadURL(r.Context(), userID, documentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DownloadDocumentResponse{
		DocumentID:  documentID,
		DownloadURL: url,
	})
}

// Delete removes one document and all its chunks.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	deleted, err := h.svc.DeleteDocument(r.Context(), userID, documentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DeleteDocumentResponse{
		DocumentID:    documentID,
		ChunksDeleted: deleted,
	})
}
