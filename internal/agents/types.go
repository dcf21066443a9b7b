// Package agents manages companion agent profiles and their chat history.
package agents

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/i18n"
)

var (
	ErrNotFound = errors.New("agent not found")
	ErrInvalid  = errors.New("invalid agent")
)

// Agent is a persona the companion can speak as.
type Agent struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	SystemPrompt string        `json:"system_prompt"`
	VoiceID      string        `json:"voice_id,omitempty"`
	AvatarURL    string        `json:"avatar_url,omitempty"`
	Relationship string        `json:"relationship,omitempty"`
	Language     i18n.Language `json:"language,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type CreateAgentRequest struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	SystemPrompt string        `json:"system_prompt"`
	VoiceID      string        `json:"voice_id,omitempty"`
	AvatarURL    string        `json:"avatar_url,omitempty"`
	Relationship string        `json:"relationship,omitempty"`
	Language     i18n.Language `json:"language,omitempty"`
}

// UpdateAgentRequest patches an agent; nil fields are left unchanged.
type UpdateAgentRequest struct {
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	SystemPrompt *string        `json:"system_prompt,omitempty"`
	VoiceID      *string        `json:"voice_id,omitempty"`
	AvatarURL    *string        `json:"avatar_url,omitempty"`
	Relationship *string        `json:"relationship,omitempty"`
	Language     *i18n.Language `json:"language,omitempty"`
}

// HistoryEntry is one persisted chat turn.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists agents and their history. Get, Update and Delete return
// ErrNotFound for unknown ids.
type Store interface {
	CreateAgent(ctx context.Context, a *Agent) error
	ListAgents(ctx context.Context) ([]*Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	UpdateAgent(ctx context.Context, a *Agent) error
	DeleteAgent(ctx context.Context, id string) error

	AppendHistory(ctx context.Context, agentID string, entry HistoryEntry) error
	// ListHistory returns entries oldest first; limit <= 0 returns all.
	ListHistory(ctx context.Context, agentID string, limit int) ([]HistoryEntry, error)
}
