package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mementolabs/memento/internal/domain"
)

const (
	// DefaultChatModel is the model used when none is configured.
	DefaultChatModel = "gpt-4o-mini"

	// maxToolRounds bounds the ask_document tool loop.
	maxToolRounds = 3
)

// DocumentTool answers document questions during generation. Backed by the
// document pipeline's query path.
type DocumentTool interface {
	QueryDocuments(ctx context.Context, userID, question, documentID string, limit int) ([]*domain.ChunkMatch, error)
}

// ChatAPI is the slice of the OpenAI API the chat client needs.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClient implements the generation capability. When a document tool is
// attached, the model may call ask_document and the client interleaves the
// tool result messages before asking for the final answer.
type ChatClient struct {
	api     ChatAPI
	model   string
	docTool DocumentTool
}

func NewChatClient(apiKey, model string) *ChatClient {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// WithDocumentTool attaches the ask_document tool and returns the client.
func (c *ChatClient) WithDocumentTool(tool DocumentTool) *ChatClient {
	c.docTool = tool
	return c
}

var askDocumentTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "ask_document",
		Description: "Search the user's uploaded documents for information relevant to a question.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"question": {"type": "string", "description": "The question to answer from the documents"},
				"document_id": {"type": "string", "description": "Optional id of a specific document to search"}
			},
			"required": ["question"]
		}`),
	},
}

type askDocumentArgs struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id"`
}

// Generate produces a response for the message window. userID scopes any
// document tool calls the model makes.
func (c *ChatClient) Generate(ctx context.Context, userID string, messages []domain.Message) (string, error) {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{
			Role:    roleToOpenAI(m.Role),
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chat,
	}
	if c.docTool != nil {
		req.Tools = []openai.Tool{askDocumentTool}
	}

	for round := 0; ; round++ {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no completion choices returned")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 || c.docTool == nil {
			return msg.Content, nil
		}
		if round >= maxToolRounds {
			return "", fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
		}

		req.Messages = append(req.Messages, msg)
		for _, call := range msg.ToolCalls {
			result := c.runToolCall(ctx, userID, call)
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
}

func (c *ChatClient) runToolCall(ctx context.Context, userID string, call openai.ToolCall) string {
	if call.Function.Name != "ask_document" {
		return fmt.Sprintf("unknown tool: %s", call.Function.Name)
	}

	var args askDocumentArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return fmt.Sprintf("invalid ask_document arguments: %v", err)
	}

	matches, err := c.docTool.QueryDocuments(ctx, userID, args.Question, args.DocumentID, 5)
	if err != nil {
		return fmt.Sprintf("error querying documents: %v", err)
	}
	if len(matches) == 0 {
		return "No relevant information found in your documents. Make sure you've uploaded documents first."
	}

	var b strings.Builder
	b.WriteString("Based on your documents:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "\n[From %s, chunk %d]:\n%s\n", m.Filename, m.ChunkIndex, m.Text)
	}
	return b.String()
}

func roleToOpenAI(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleUser:
		return openai.ChatMessageRoleUser
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case domain.RoleTool:
		return openai.ChatMessageRoleTool
	}
	return openai.ChatMessageRoleUser
}
