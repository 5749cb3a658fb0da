package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mementolabs/memento/internal/domain"
	"github.com/mementolabs/memento/internal/pagination"
	"github.com/mementolabs/memento/internal/repository"
)

// ThreadRepository is the turn storage the thread service reads.
type ThreadRepository interface {
	ListByThread(ctx context.Context, threadID string, cursor *pagination.Cursor, limit int) (*repository.TurnPageResult, error)
	GetAllByThread(ctx context.Context, threadID string) ([]*domain.Turn, error)
}

// ThreadStats summarizes one thread.
type ThreadStats struct {
	ThreadID        string `json:"thread_id"`
	MessageCount    int    `json:"message_count"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// ThreadService serves read-side thread operations: paged history, markdown
// export and stats. Every operation checks thread ownership first.
type ThreadService struct {
	repo     ThreadRepository
	budgeter *Budgeter
}

func NewThreadService(repo ThreadRepository, budgeter *Budgeter) *ThreadService {
	return &ThreadService{repo: repo, budgeter: budgeter}
}

// History returns one page of the thread's turns, newest first.
func (s *ThreadService) History(ctx context.Context, userID, threadID string, cursor *pagination.Cursor, limit int) (*repository.TurnPageResult, error) {
	if !domain.ThreadOwnedBy(threadID, userID) {
		return nil, domain.ErrThreadAccess
	}

	page, err := s.repo.ListByThread(ctx, threadID, cursor, limit)
	if err != nil {
		return nil, domain.IndexError(err)
	}
	return page, nil
}

// Export renders the full thread as a markdown transcript, oldest first.
func (s *ThreadService) Export(ctx context.Context, userID, threadID string) (string, error) {
	if !domain.ThreadOwnedBy(threadID, userID) {
		return "", domain.ErrThreadAccess
	}

	turns, err := s.repo.GetAllByThread(ctx, threadID)
	if err != nil {
		return "", domain.IndexError(err)
	}
	if len(turns) == 0 {
		return "", domain.ErrThreadNotFound
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n", threadID)
	for _, t := range turns {
		fmt.Fprintf(&b, "\n**%s** (%s):\n\n%s\n", roleLabel(t.Role), t.CreatedAt.Format("2006-01-02 15:04"), t.Text)
	}
	return b.String(), nil
}

// Stats returns the message count and estimated token footprint of the
// full thread history.
func (s *ThreadService) Stats(ctx context.Context, userID, threadID string) (*ThreadStats, error) {
	if !domain.ThreadOwnedBy(threadID, userID) {
		return nil, domain.ErrThreadAccess
	}

	turns, err := s.repo.GetAllByThread(ctx, threadID)
	if err != nil {
		return nil, domain.IndexError(err)
	}
	if len(turns) == 0 {
		return nil, domain.ErrThreadNotFound
	}

	messages := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, domain.Message{Role: t.Role, Content: t.Text})
	}

	return &ThreadStats{
		ThreadID:        threadID,
		MessageCount:    len(turns),
		EstimatedTokens: s.budgeter.EstimateTokens(messages),
	}, nil
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser:
		return "You"
	case domain.RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}
