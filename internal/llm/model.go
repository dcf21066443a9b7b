// Package llm produces assistant replies: canned responses or a persona
// prompt sent to a chat model.
package llm

import (
	"context"

	"github.com/pkg/errors"
)

// Role of a chat turn as understood by chat-completion APIs.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior exchange handed to the model.
type Turn struct {
	Role    Role
	Content string
}

// ChatModel generates one reply for user given a system prompt and history.
type ChatModel interface {
	Generate(ctx context.Context, system string, history []Turn, user string) (string, error)
}

// ErrEmptyReply is returned when a model answers with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")
