package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mementolabs/memento/internal/api"
	"github.com/mementolabs/memento/internal/api/middleware"
	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/pagination"
	"github.com/mementolabs/memento/internal/repository"
	"github.com/mementolabs/memento/internal/service"
)

// ThreadReader is the read-side thread surface the handler needs.
type ThreadReader interface {
	History(ctx context.Context, userID, threadID string, cursor *pagination.Cursor, limit int) (*repository.TurnPageResult, error)
	Export(ctx context.Context, userID, threadID string) (string, error)
	Stats(ctx context.Context, userID, threadID string) (*service.ThreadStats, error)
}

type ThreadHandler struct {
	svc ThreadReader
}

func NewThreadHandler(svc ThreadReader) *ThreadHandler {
	return &ThreadHandler{svc: svc}
}

type TurnResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type HistoryResponse struct {
	Turns      []TurnResponse `json:"turns"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

func turnToResponse(t *domain.Turn) TurnResponse {
	return TurnResponse{
		ID:        t.ID,
		Role:      string(t.Role),
		Text:      t.Text,
		CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// History returns one page of the thread's turns, newest first.
func (h *ThreadHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	threadID := chi.URLParam(r, "id")
	if threadID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	var cursor *pagination.Cursor
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := pagination.DecodeCursor(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		cursor = parsed
	}

	page, err := h.svc.History(r.Context(), userID, threadID, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	turns := make([]TurnResponse, 0, len(page.Items))
	for _, t := range page.Items {
		turns = append(turns, turnToResponse(t))
	}

	api.Success(w, http.StatusOK, HistoryResponse{
		Turns:      turns,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// Export streams the full thread as a markdown transcript.
func (h *ThreadHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	threadID := chi.URLParam(r, "id")
	if threadID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	markdown, err := h.svc.Export(r.Context(), userID, threadID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+threadID+`.md"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(markdown))
}

// Stats returns the thread's message count and token footprint.
func (h *ThreadHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	threadID := chi.URLParam(r, "id")
	if threadID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	stats, err := h.svc.Stats(r.Context(), userID, threadID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, stats)
}
