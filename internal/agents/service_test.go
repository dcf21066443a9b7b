package agents_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/aura-companion/internal/agents"
	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/infra/storage"
	"github.com/chadiek/aura-companion/internal/session"
)

func strPtr(s string) *string { return &s }

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	svc := agents.NewService(storage.NewMemoryStore())

	_, err := svc.Create(ctx, agents.CreateAgentRequest{Name: "  "})
	assert.ErrorIs(t, err, agents.ErrInvalid)
	_, err = svc.Create(ctx, agents.CreateAgentRequest{Name: "Minh", Language: "fr"})
	assert.ErrorIs(t, err, agents.ErrInvalid)

	a, err := svc.Create(ctx, agents.CreateAgentRequest{Name: " Minh ", Description: "grandson", Relationship: "grandson", Language: i18n.Vietnamese})
	require.NoError(t, err)
	assert.Equal(t, "Minh", a.Name)
	assert.Len(t, a.ID, 36)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	updated, err := svc.Update(ctx, a.ID, agents.UpdateAgentRequest{Description: strPtr("loves fishing")})
	require.NoError(t, err)
	assert.Equal(t, "Minh", updated.Name)
	assert.Equal(t, "loves fishing", updated.Description)
	assert.False(t, updated.UpdatedAt.Before(a.UpdatedAt))

	_, err = svc.Update(ctx, a.ID, agents.UpdateAgentRequest{Name: strPtr("")})
	assert.ErrorIs(t, err, agents.ErrInvalid)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, a.ID))
	_, err = svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, agents.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "not-a-uuid"), agents.ErrNotFound)
	_, err = svc.Update(ctx, "not-a-uuid", agents.UpdateAgentRequest{})
	assert.ErrorIs(t, err, agents.ErrNotFound)
}

func TestService_SeedOnce(t *testing.T) {
	ctx := context.Background()
	svc := agents.NewService(storage.NewMemoryStore())
	first, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Aura", first.Name)

	again, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	list, _ := svc.List(ctx)
	assert.Len(t, list, 1)
}

func TestService_HistoryAndRecorder(t *testing.T) {
	ctx := context.Background()
	svc := agents.NewService(storage.NewMemoryStore())

	empty, err := svc.History(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.AppendHistory(ctx, "a1", "user", "hello")
	require.NoError(t, err)

	rec := svc.Recorder("a1")
	msg := session.Message{ID: "m2", Text: "hi there", Sender: session.SenderAssistant, Timestamp: time.Now()}
	require.NoError(t, rec.Record(ctx, msg))

	h, err := svc.History(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "user", h[0].Role)
	assert.Equal(t, "m2", h[1].ID)
	assert.Equal(t, "assistant", h[1].Role)

	msgs := agents.SessionMessages(h)
	assert.Equal(t, session.SenderAssistant, msgs[1].Sender)
	assert.Equal(t, "hi there", msgs[1].Text)
}

func TestAgent_Persona(t *testing.T) {
	a := &agents.Agent{Name: "Minh", Description: "d", SystemPrompt: "p", Relationship: "grandson"}
	p := a.Persona()
	assert.Equal(t, "Minh", p.Name)
	assert.Equal(t, "grandson", p.Relationship)
}
