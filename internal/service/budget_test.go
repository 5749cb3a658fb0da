package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mementolabs/memento/internal/domain"
)

// stubCounter counts one token per character, or fails on demand.
type stubCounter struct {
	err error
}

func (c *stubCounter) Count(text string) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	return len(text), nil
}

func TestBudgeter_EstimateTokens_WithCounter(t *testing.T) {
	b := NewBudgeter(&stubCounter{})

	messages := []domain.Message{
		domain.SystemMessage(strings.Repeat("s", 10)),
		domain.UserMessage(strings.Repeat("u", 30)),
	}

	// 10 + 30 content tokens plus 4 overhead per message.
	assert.Equal(t, 48, b.EstimateTokens(messages))
}

func TestBudgeter_EstimateTokens_FallsBackOnCounterError(t *testing.T) {
	b := NewBudgeter(&stubCounter{err: errors.New("encoding unavailable")})

	messages := []domain.Message{
		domain.UserMessage(strings.Repeat("x", 40)),
	}

	// 40/4 characters plus overhead; the counter error never surfaces.
	assert.Equal(t, 14, b.EstimateTokens(messages))
}

func TestBudgeter_EstimateTokens_NilCounter(t *testing.T) {
	b := NewBudgeter(nil)

	messages := []domain.Message{
		domain.UserMessage(strings.Repeat("x", 100)),
	}

	assert.Equal(t, 29, b.EstimateTokens(messages))
}

func TestBudgeter_Truncate_UnderCeilingUnchanged(t *testing.T) {
	b := NewBudgeter(&stubCounter{})

	messages := []domain.Message{
		domain.SystemMessage("be helpful"),
		domain.UserMessage("hello"),
		domain.AssistantMessage("hi"),
	}

	out := b.Truncate(messages, 10000)

	assert.Equal(t, messages, out)
}

func TestBudgeter_Truncate_LongHistoryKeepsSystemAndRecent(t *testing.T) {
	b := NewBudgeter(&stubCounter{})

	content := strings.Repeat("m", 800)
	messages := []domain.Message{domain.SystemMessage(content)}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			messages = append(messages, domain.UserMessage(content))
		} else {
			messages = append(messages, domain.AssistantMessage(content))
		}
	}

	// 51 messages at 804 tokens each is far over budget. The recent
	// window starts at 20 and halves once to 10.
	out := b.Truncate(messages, 10000)

	assert.Len(t, out, 11)
	assert.Equal(t, domain.RoleSystem, out[0].Role)
	assert.Equal(t, messages[len(messages)-10:], out[1:])
	assert.LessOrEqual(t, b.EstimateTokens(out), 10000)
}

func TestBudgeter_Truncate_HalvingStopsAtFloor(t *testing.T) {
	b := NewBudgeter(&stubCounter{})

	messages := []domain.Message{domain.SystemMessage("sys")}
	for i := 0; i < 30; i++ {
		messages = append(messages, domain.UserMessage(strings.Repeat("m", 500)))
	}

	// An impossible ceiling: truncation is best-effort and bottoms out at
	// four recent messages rather than emptying the window.
	out := b.Truncate(messages, 1)

	assert.Len(t, out, 5)
	assert.Equal(t, domain.RoleSystem, out[0].Role)
	assert.Equal(t, messages[len(messages)-4:], out[1:])
}

func TestBudgeter_Truncate_RecentMessagesKeepOrder(t *testing.T) {
	b := NewBudgeter(&stubCounter{})

	var messages []domain.Message
	for i := 0; i < 40; i++ {
		messages = append(messages, domain.UserMessage(strings.Repeat("m", 1000)))
	}

	out := b.Truncate(messages, 5000)

	// Whatever window survives is a contiguous suffix of the input.
	assert.Equal(t, messages[len(messages)-len(out):], out)
}

func TestBudgeter_Truncate_ZeroCeilingUnchanged(t *testing.T) {
	b := NewBudgeter(&stubCounter{})

	messages := []domain.Message{domain.UserMessage("hello")}

	assert.Equal(t, messages, b.Truncate(messages, 0))
}
