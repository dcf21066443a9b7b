// Package storage holds the persistence backends: agent stores and the
// recording archive.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/chadiek/aura-companion/internal/agents"
)

// MemoryStore is an in-process agents.Store.
type MemoryStore struct {
	mu      sync.RWMutex
	agents  map[string]*agents.Agent
	history map[string][]agents.HistoryEntry
}

var _ agents.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:  make(map[string]*agents.Agent),
		history: make(map[string][]agents.HistoryEntry),
	}
}

func (s *MemoryStore) CreateAgent(ctx context.Context, a *agents.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

// ListAgents returns agents oldest first.
func (s *MemoryStore) ListAgents(ctx context.Context) ([]*agents.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*agents.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, id string) (*agents.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, agents.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpdateAgent(ctx context.Context, a *agents.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; !ok {
		return agents.ErrNotFound
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return agents.ErrNotFound
	}
	delete(s.agents, id)
	delete(s.history, id)
	return nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, agentID string, entry agents.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[agentID] = append(s.history[agentID], entry)
	return nil
}

func (s *MemoryStore) ListHistory(ctx context.Context, agentID string, limit int) ([]agents.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[agentID]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]agents.HistoryEntry(nil), h...), nil
}
