package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mementolabs/memento/internal/api/middleware"
	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/service"
)

type MockTurnRunner struct {
	mock.Mock
}

func (m *MockTurnRunner) RunTurn(ctx context.Context, req service.TurnRequest) (*service.TurnResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TurnResponse), args.Error(1)
}

func requestWithUserID(method, url string, body []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, "alice")
	return req.WithContext(ctx)
}

func TestChatHandler_Chat_Success(t *testing.T) {
	mockSvc := new(MockTurnRunner)
	handler := NewChatHandler(mockSvc)

	mockSvc.On("RunTurn", mock.Anything, mock.MatchedBy(func(req service.TurnRequest) bool {
		return req.UserID == "alice" && req.ThreadID == "alice_t1" && req.Text == "hello"
	})).Return(&service.TurnResponse{Response: "hi there", MemoryUsed: 2}, nil)

	body := `{"thread_id":"alice_t1","message":"hello"}`
	req := requestWithUserID(http.MethodPost, "/chat", []byte(body))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "hi there", data["response"])
	assert.Equal(t, float64(2), data["memory_used"])
	mockSvc.AssertExpectations(t)
}

func TestChatHandler_Chat_Unauthorized(t *testing.T) {
	mockSvc := new(MockTurnRunner)
	handler := NewChatHandler(mockSvc)

	body := `{"thread_id":"alice_t1","message":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockSvc.AssertNotCalled(t, "RunTurn")
}

func TestChatHandler_Chat_InvalidJSON(t *testing.T) {
	mockSvc := new(MockTurnRunner)
	handler := NewChatHandler(mockSvc)

	req := requestWithUserID(http.MethodPost, "/chat", []byte(`{invalid`))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestChatHandler_Chat_MissingThreadID(t *testing.T) {
	mockSvc := new(MockTurnRunner)
	handler := NewChatHandler(mockSvc)

	req := requestWithUserID(http.MethodPost, "/chat", []byte(`{"message":"hello"}`))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "thread_id is required")
}

func TestChatHandler_Chat_MissingMessage(t *testing.T) {
	mockSvc := new(MockTurnRunner)
	handler := NewChatHandler(mockSvc)

	req := requestWithUserID(http.MethodPost, "/chat", []byte(`{"thread_id":"alice_t1"}`))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message is required")
}

func TestChatHandler_Chat_ThreadAccessDenied(t *testing.T) {
	mockSvc := new(MockTurnRunner)
	handler := NewChatHandler(mockSvc)

	mockSvc.On("RunTurn", mock.Anything, mock.Anything).Return(nil, domain.ErrThreadAccess)

	body := `{"thread_id":"bob_t1","message":"hello"}`
	req := requestWithUserID(http.MethodPost, "/chat", []byte(body))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestChatHandler_Chat_GenerationFailure(t *testing.T) {
	mockSvc := new(MockTurnRunner)
	handler := NewChatHandler(mockSvc)

	mockSvc.On("RunTurn", mock.Anything, mock.Anything).
		Return(nil, domain.GenerationError(errors.New("model overloaded")))

	body := `{"thread_id":"alice_t1","message":"hello"}`
	req := requestWithUserID(http.MethodPost, "/chat", []byte(body))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrCodeGeneration)
	mockSvc.AssertExpectations(t)
}

func TestChatHandler_NewThread_Success(t *testing.T) {
	handler := NewChatHandler(new(MockTurnRunner))

	req := requestWithUserID(http.MethodPost, "/threads", nil)
	w := httptest.NewRecorder()

	handler.NewThread(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	threadID := data["thread_id"].(string)
	assert.Contains(t, threadID, "alice_")
}

func TestChatHandler_NewThread_UnderscoreUserID(t *testing.T) {
	handler := NewChatHandler(new(MockTurnRunner))

	req := httptest.NewRequest(http.MethodPost, "/threads", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, "alice_smith"))
	w := httptest.NewRecorder()

	handler.NewThread(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	threadID := data["thread_id"].(string)

	// Minted IDs must round-trip through ownership parsing for the caller.
	assert.True(t, domain.ThreadOwnedBy(threadID, "alice_smith"))
	assert.False(t, domain.ThreadOwnedBy(threadID, "alice"))
}

func TestChatHandler_NewThread_Unauthorized(t *testing.T) {
	handler := NewChatHandler(new(MockTurnRunner))

	req := httptest.NewRequest(http.MethodPost, "/threads", nil)
	w := httptest.NewRecorder()

	handler.NewThread(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
