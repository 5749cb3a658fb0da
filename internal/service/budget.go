package service

import (
	"errors"
	"log"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mementolabs/memento/internal/domain"
)

var errNoEncoding = errors.New("token encoding unavailable")

const (
	// perMessageOverhead approximates the per-message framing tokens the
	// chat API adds around each message's content.
	perMessageOverhead = 4

	// truncateFloor is the smallest recent-message window truncation will
	// halve down to.
	truncateFloor = 4

	// recentWindow is the number of trailing non-system messages kept when
	// truncation kicks in.
	recentWindow = 20
)

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts tokens with the cl100k_base encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter backed by tiktoken. If the encoding
// cannot be loaded the counter is still usable; Count reports the error and
// callers fall back to the character heuristic.
func NewTiktokenCounter() *TiktokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Printf("tiktoken: failed to load cl100k_base encoding, falling back to character estimate: %v", err)
		return &TiktokenCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

func (c *TiktokenCounter) Count(text string) (int, error) {
	if c.enc == nil {
		return 0, errNoEncoding
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}

// Budgeter estimates token usage for message windows and truncates them to
// fit a ceiling. Estimation never fails: when the counter errors, the
// estimate degrades to len(content)/4 per message.
type Budgeter struct {
	counter TokenCounter
}

// NewBudgeter creates a Budgeter. A nil counter means the character
// heuristic is used for every message.
func NewBudgeter(counter TokenCounter) *Budgeter {
	return &Budgeter{counter: counter}
}

// EstimateTokens returns the approximate token cost of sending messages as
// a chat request, including per-message overhead.
func (b *Budgeter) EstimateTokens(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + b.countText(m.Content)
	}
	return total
}

func (b *Budgeter) countText(text string) int {
	if b.counter != nil {
		n, err := b.counter.Count(text)
		if err == nil {
			return n
		}
	}
	return len(text) / 4
}

// Truncate reduces messages to fit within ceiling tokens. System messages
// are always kept, in their original order; of the rest only a trailing
// window survives, starting at the most recent 20 and halving from the
// front until the estimate fits or the window is down to 4 messages.
// Messages already within budget are returned unchanged.
func (b *Budgeter) Truncate(messages []domain.Message, ceiling int) []domain.Message {
	if ceiling <= 0 || b.EstimateTokens(messages) <= ceiling {
		return messages
	}

	var system, rest []domain.Message
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	recent := rest
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	for b.EstimateTokens(append(append([]domain.Message{}, system...), recent...)) > ceiling && len(recent) > truncateFloor {
		keep := len(recent) / 2
		if keep < truncateFloor {
			keep = truncateFloor
		}
		recent = recent[len(recent)-keep:]
	}

	out := make([]domain.Message, 0, len(system)+len(recent))
	out = append(out, system...)
	out = append(out, recent...)
	return out
}
