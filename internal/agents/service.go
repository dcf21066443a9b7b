package agents

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/llm"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/session"
)

// DefaultAgent is seeded into an empty store.
var DefaultAgent = CreateAgentRequest{
	Name:         "Aura",
	Description:  "A warm, patient companion who loves hearing about your day",
	Relationship: "friend",
	Language:     i18n.English,
}

// Service validates requests and coordinates the Store.
type Service struct {
	store Store
	now   func() time.Time
	log   *slog.Logger
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now, log: observability.Logger().With("component", "agents")}
}

// Seed creates DefaultAgent when the store holds no agents and returns the
// first agent.
func (s *Service) Seed(ctx context.Context) (*Agent, error) {
	list, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list agents")
	}
	if len(list) > 0 {
		return list[0], nil
	}
	a, err := s.Create(ctx, DefaultAgent)
	if err != nil {
		return nil, err
	}
	s.log.Info("seeded default agent", "id", a.ID)
	return a, nil
}

func (s *Service) Create(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.Wrap(ErrInvalid, "name is required")
	}
	if req.Language != "" && !req.Language.Valid() {
		return nil, errors.Wrapf(ErrInvalid, "unknown language %q", req.Language)
	}
	now := s.now().UTC()
	a := &Agent{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		SystemPrompt: strings.TrimSpace(req.SystemPrompt),
		VoiceID:      req.VoiceID,
		AvatarURL:    req.AvatarURL,
		Relationship: strings.TrimSpace(req.Relationship),
		Language:     req.Language,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		return nil, errors.Wrap(err, "create agent")
	}
	return a, nil
}

func (s *Service) List(ctx context.Context) ([]*Agent, error) {
	list, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list agents")
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Agent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.store.GetAgent(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateAgentRequest) (*Agent, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errors.Wrap(ErrInvalid, "name must not be empty")
		}
		a.Name = name
	}
	if req.Description != nil {
		a.Description = strings.TrimSpace(*req.Description)
	}
	if req.SystemPrompt != nil {
		a.SystemPrompt = strings.TrimSpace(*req.SystemPrompt)
	}
	if req.VoiceID != nil {
		a.VoiceID = *req.VoiceID
	}
	if req.AvatarURL != nil {
		a.AvatarURL = *req.AvatarURL
	}
	if req.Relationship != nil {
		a.Relationship = strings.TrimSpace(*req.Relationship)
	}
	if req.Language != nil {
		if *req.Language != "" && !req.Language.Valid() {
			return nil, errors.Wrapf(ErrInvalid, "unknown language %q", *req.Language)
		}
		a.Language = *req.Language
	}
	a.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return nil, errors.Wrap(err, "update agent")
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.store.DeleteAgent(ctx, id)
}

// History returns the stored chat turns for an agent, oldest first. Unknown
// agents have an empty history.
func (s *Service) History(ctx context.Context, agentID string) ([]HistoryEntry, error) {
	list, err := s.store.ListHistory(ctx, agentID, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	if list == nil {
		list = []HistoryEntry{}
	}
	return list, nil
}

// AppendHistory stores one turn with a fresh sortable id.
func (s *Service) AppendHistory(ctx context.Context, agentID, role, content string) (HistoryEntry, error) {
	now := s.now().UTC()
	entry := HistoryEntry{ID: xid.NewWithTime(now).String(), Role: role, Content: content, Timestamp: now}
	if err := s.store.AppendHistory(ctx, agentID, entry); err != nil {
		return HistoryEntry{}, errors.Wrap(err, "append history")
	}
	return entry, nil
}

// Recorder persists a session's messages into agentID's history.
func (s *Service) Recorder(agentID string) session.HistoryRecorder {
	return historyRecorder{store: s.store, agentID: agentID}
}

type historyRecorder struct {
	store   Store
	agentID string
}

func (r historyRecorder) Record(ctx context.Context, msg session.Message) error {
	return r.store.AppendHistory(ctx, r.agentID, HistoryEntry{
		ID:        msg.ID,
		Role:      string(msg.Sender),
		Content:   msg.Text,
		Timestamp: msg.Timestamp.UTC(),
	})
}

// Persona maps the agent to the prompt persona used by the reply models.
func (a *Agent) Persona() llm.Persona {
	return llm.Persona{
		Name:         a.Name,
		Description:  a.Description,
		SystemPrompt: a.SystemPrompt,
		Relationship: a.Relationship,
	}
}

// SessionMessages converts stored history back into session messages.
func SessionMessages(entries []HistoryEntry) []session.Message {
	out := make([]session.Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, session.Message{ID: e.ID, Text: e.Content, Sender: session.Sender(e.Role), Timestamp: e.Timestamp})
	}
	return out
}
