package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/session"
)

// DefaultHistoryTurns bounds how much of the conversation is sent to the model.
const DefaultHistoryTurns = 20

// Companion is a session.Replier that answers in the voice of a persona.
type Companion struct {
	model    ChatModel
	maxTurns int

	mu      sync.RWMutex
	persona Persona
}

var _ session.Replier = (*Companion)(nil)

func NewCompanion(model ChatModel, persona Persona) *Companion {
	return &Companion{model: model, persona: persona, maxTurns: DefaultHistoryTurns}
}

// SetPersona rebinds the agent profile, e.g. when the client switches agents.
func (c *Companion) SetPersona(p Persona) {
	c.mu.Lock()
	c.persona = p
	c.mu.Unlock()
}

func (c *Companion) Persona() Persona {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persona
}

func (c *Companion) Reply(ctx context.Context, req session.ReplyRequest) (string, error) {
	system := BuildSystemPrompt(c.Persona(), req.Settings.UserName, req.Settings.Language)
	reply, err := c.model.Generate(ctx, system, HistoryTurns(req.History, req.Text, c.maxTurns), req.Text)
	if err != nil {
		return "", errors.Wrap(err, "companion reply")
	}
	return reply, nil
}

// HistoryTurns converts session messages into model turns. The trailing user
// message equal to current is dropped since it is sent separately, system
// notes are folded in as user context, and only the last max turns are kept.
func HistoryTurns(history []session.Message, current string, max int) []Turn {
	msgs := history
	if n := len(msgs); n > 0 && msgs[n-1].Sender == session.SenderUser && strings.TrimSpace(msgs[n-1].Text) == strings.TrimSpace(current) {
		msgs = msgs[:n-1]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		switch m.Sender {
		case session.SenderAssistant:
			turns = append(turns, Turn{Role: RoleAssistant, Content: m.Text})
		case session.SenderSystem:
			turns = append(turns, Turn{Role: RoleUser, Content: "[" + m.Text + "]"})
		default:
			turns = append(turns, Turn{Role: RoleUser, Content: m.Text})
		}
	}
	if max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	return turns
}
