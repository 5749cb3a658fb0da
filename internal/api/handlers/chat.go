package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/mementolabs/memento/internal/api"
	"github.com/mementolabs/memento/internal/api/middleware"
	"github.com/mementolabs/memento/internal/service"
)

// TurnRunner runs one conversation turn.
type TurnRunner interface {
	RunTurn(ctx context.Context, req service.TurnRequest) (*service.TurnResponse, error)
}

type ChatHandler struct {
	svc TurnRunner
}

func NewChatHandler(svc TurnRunner) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	ThreadID   string `json:"thread_id"`
	Message    string `json:"message"`
	DocumentID string `json:"document_id,omitempty"`
	SearchDocs bool   `json:"search_docs,omitempty"`
}

type NewThreadResponse struct {
	ThreadID string `json:"thread_id"`
}

// Chat runs one conversation turn in an existing thread.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ThreadID == "" {
		api.Error(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.svc.RunTurn(r.Context(), service.TurnRequest{
		ThreadID:   req.ThreadID,
		UserID:     userID,
		Text:       req.Message,
		DocumentID: req.DocumentID,
		SearchDocs: req.SearchDocs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, resp)
}

// NewThread mints a fresh thread ID owned by the caller.
func (h *ChatHandler) NewThread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	api.Success(w, http.StatusCreated, NewThreadResponse{
		ThreadID: userID + "_" + uuid.NewString(),
	})
}
