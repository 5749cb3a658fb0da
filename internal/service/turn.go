package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/telemetry"
)

// generationTimeout bounds a dispatched generation after the caller's
// context has been detached.
const generationTimeout = 2 * time.Minute

// GenerationClient produces an assistant response for a message window.
type GenerationClient interface {
	Generate(ctx context.Context, userID string, messages []domain.Message) (string, error)
}

// MemoryStore is the conversational memory the orchestrator reads and writes.
type MemoryStore interface {
	Record(ctx context.Context, threadID string, role domain.Role, text string) error
	Retrieve(ctx context.Context, threadID, queryText string, limit int) ([]string, error)
}

// DocumentQuerier answers document questions for the orchestrator. Optional.
type DocumentQuerier interface {
	QueryDocuments(ctx context.Context, userID, question, documentID string, limit int) ([]*domain.ChunkMatch, error)
}

// ThreadHistory loads the full prior history of a thread.
type ThreadHistory interface {
	GetAllByThread(ctx context.Context, threadID string) ([]*domain.Turn, error)
}

// TurnConfig tunes one orchestrator instance.
type TurnConfig struct {
	SystemPrompt   string
	TokenCeiling   int
	MemoryLimit    int
	DocSearchLimit int
}

// TurnRequest is one user utterance to run through the pipeline.
type TurnRequest struct {
	ThreadID   string
	UserID     string
	Text       string
	DocumentID string
	SearchDocs bool
}

// TurnResponse is the outcome of a completed turn. Degraded is set when a
// retrieval stage failed and the turn proceeded without its contribution.
type TurnResponse struct {
	Response      string `json:"response"`
	MemoryUsed    int    `json:"memory_used"`
	DocChunksUsed int    `json:"doc_chunks_used"`
	Degraded      bool   `json:"degraded"`
}

/// TurnService orchestrates a conversation turn: load history, retrieve
// memory and document context, budget the window, generate, persist. Only
// generation failure aborts the turn; every other stage degrades.
type TurnService struct {
	memory    MemoryStore
	docs      DocumentQuerier
	history   ThreadHistory
	generator GenerationClient
	budgeter  *Budgeter
	cfg       TurnConfig
}

func NewTurnService(memory MemoryStore, history ThreadHistory, generator GenerationClient, budgeter *Budgeter, cfg TurnConfig) *TurnService {
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 3
	}
	if cfg.DocSearchLimit <= 0 {
		cfg.DocSearchLimit = 5
	}
	return &TurnService{
		memory:    memory,
		history:   history,
		generator: generator,
		budgeter:  budgeter,
		cfg:       cfg,
	}
}

// WithDocumentQuerier enables pre-generation document retrieval and returns
// the service.
func (s *TurnService) WithDocumentQuerier(docs DocumentQuerier) *TurnService {
	s.docs = docs
	return s
}

// RunTurn executes one conversation turn end to end.
func (s *TurnService) RunTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "turn.run", telemetry.SpanAttributes{
		UserID:    req.UserID,
		ThreadID:  req.ThreadID,
		Operation: "turn",
	})
	defer span.End()

	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if !domain.ThreadOwnedBy(req.ThreadID, req.UserID) {
		return nil, domain.ErrThreadAccess
	}

	degraded := false

	turns, err := s.history.GetAllByThread(ctx, req.ThreadID)
	if err != nil {
		log.Printf("turn: history load failed for thread %s, continuing without history: %v", req.ThreadID, err)
		telemetry.CaptureError(ctx, err)
		degraded = true
		turns = nil
	}

	snippets, matches, retrievalDegraded := s.retrieveContext(ctx, req)
	degraded = degraded || retrievalDegraded

	messages := s.assembleWindow(turns, req.Text, snippets, matches)
	messages = s.budgeter.Truncate(messages, s.cfg.TokenCeiling)

	// Cancellation is honored up to dispatch. Once generation is in
	// flight the turn runs to completion and is persisted, so the model
	// call is never paid for twice.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generationTimeout)
	defer cancel()

	response, err := s.generator.Generate(genCtx, req.UserID, messages)
	if err != nil {
		span.SetError(err)
		return nil, domain.GenerationError(err)
	}

	s.persistTurn(genCtx, req.ThreadID, req.Text, response)

	return &TurnResponse{
		Response:      response,
		MemoryUsed:    len(snippets),
		DocChunksUsed: len(matches),
		Degraded:      degraded,
	}, nil
}

// retrieveContext runs memory and document retrieval concurrently. Both are
// best-effort; a failure is logged and the turn proceeds without that
// contribution.
func (s *TurnService) retrieveContext(ctx context.Context, req TurnRequest) ([]string, []*domain.ChunkMatch, bool) {
	var (
		wg       sync.WaitGroup
		snippets []string
		matches  []*domain.ChunkMatch
		memErr   error
		docErr   error
	)
	searchDocs := s.docs != nil && (req.SearchDocs || req.DocumentID != "")

	wg.Add(1)
	go func() {
		defer wg.Done()
		snippets, memErr = s.memory.Retrieve(ctx, req.ThreadID, req.Text, s.cfg.MemoryLimit)
	}()

	if searchDocs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matches, docErr = s.docs.QueryDocuments(ctx, req.UserID, req.Text, req.DocumentID, s.cfg.DocSearchLimit)
		}()
	}
	wg.Wait()

	degraded := false
	if memErr != nil {
		log.Printf("turn: memory retrieval failed for thread %s, continuing without memory: %v", req.ThreadID, memErr)
		telemetry.CaptureError(ctx, memErr)
		snippets = nil
		degraded = true
	}
	if docErr != nil {
		log.Printf("turn: document retrieval failed for user %s, continuing without documents: %v", req.UserID, docErr)
		telemetry.CaptureError(ctx, docErr)
		matches = nil
		degraded = true
	}
	return snippets, matches, degraded
}

// assembleWindow builds the message window: system prompt, prior turns, then
// the user utterance with retrieved context appended to its text. Retrieved
// snippets ride inside the user message so the model sees them exactly where
// the question is asked.
func (s *TurnService) assembleWindow(turns []*domain.Turn, text string, snippets []string, matches []*domain.ChunkMatch) []domain.Message {
	messages := make([]domain.Message, 0, len(turns)+2)
	if s.cfg.SystemPrompt != "" {
		messages = append(messages, domain.SystemMessage(s.cfg.SystemPrompt))
	}
	for _, t := range turns {
		messages = append(messages, domain.Message{Role: t.Role, Content: t.Text})
	}

	var b strings.Builder
	b.WriteString(text)
	if len(snippets) > 0 {
		b.WriteString("\n\nRelevant context from earlier:")
		for _, snippet := range snippets {
			b.WriteString("\n- ")
			b.WriteString(snippet)
		}
	}
	if len(matches) > 0 {
		b.WriteString("\n\nRelevant document excerpts:")
		for _, m := range matches {
			fmt.Fprintf(&b, "\n[From %s, chunk %d]: %s", m.Filename, m.ChunkIndex, m.Text)
		}
	}

	return append(messages, domain.UserMessage(b.String()))
}

// persistTurn records both sides of the exchange. Persistence is
// best-effort: a failure is logged and the response still goes out.
func (s *TurnService) persistTurn(ctx context.Context, threadID, userText, response string) {
	if err := s.memory.Record(ctx, threadID, domain.RoleUser, userText); err != nil {
		log.Printf("turn: failed to record user turn for thread %s: %v", threadID, err)
		telemetry.CaptureError(ctx, err)
	}
	if err := s.memory.Record(ctx, threadID, domain.RoleAssistant, response); err != nil {
		log.Printf("turn: failed to record assistant turn for thread %s: %v", threadID, err)
		telemetry.CaptureError(ctx, err)
	}
}
