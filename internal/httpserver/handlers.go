package httpserver

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/agentapi"
	"github.com/chadiek/aura-companion/internal/agents"
	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/metrics"
	twiliomw "github.com/chadiek/aura-companion/internal/middleware"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/session"
)

const maxTalkUpload = 25 << 20

func (s *server) createAgent(c echo.Context) error {
	var req agents.CreateAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := s.deps.Agents.Create(c.Request().Context(), req)
	if err != nil {
		return s.agentError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (s *server) listAgents(c echo.Context) error {
	list, err := s.deps.Agents.List(c.Request().Context())
	if err != nil {
		return s.agentError(c, err)
	}
	if list == nil {
		list = []*agents.Agent{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *server) getAgent(c echo.Context) error {
	a, err := s.deps.Agents.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.agentError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *server) updateAgent(c echo.Context) error {
	var req agents.UpdateAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := s.deps.Agents.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return s.agentError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *server) deleteAgent(c echo.Context) error {
	if err := s.deps.Agents.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.agentError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) chatHistory(c echo.Context) error {
	list, err := s.deps.Agents.History(c.Request().Context(), c.Param("agentId"))
	if err != nil {
		return s.agentError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// chat answers one text message. History is stored only for an explicit agent.
func (s *server) chat(c echo.Context) error {
	var req agentapi.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No text provided")
	}
	reply, err := s.answer(c.Request().Context(), req.AgentID, text)
	if err != nil {
		return s.agentError(c, err)
	}
	return c.JSON(http.StatusOK, agentapi.ChatResponse{Response: reply})
}

// talk transcribes an uploaded utterance and answers it.
func (s *server) talk(c echo.Context) error {
	if s.deps.Transcriber == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "transcription unavailable")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()
	audio, err := io.ReadAll(io.LimitReader(f, maxTalkUpload))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == echo.MIMEOctetStream {
		contentType = "audio/wav"
	}

	ctx := c.Request().Context()
	agentID := c.FormValue("agent_id")
	agent, err := s.resolveAgent(ctx, agentID)
	if err != nil {
		return s.agentError(c, err)
	}
	userText, err := s.deps.Transcriber.Transcribe(ctx, audio, contentType, agentLanguage(agent, s.deps.Config.DefaultLanguage))
	if err != nil {
		s.deps.Metrics.RecordError("transcription")
		observability.LoggerFromContext(ctx).Error("talk transcription failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "transcription failed")
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Could not understand audio")
	}
	reply, err := s.answer(ctx, agentID, userText)
	if err != nil {
		return s.agentError(c, err)
	}
	return c.JSON(http.StatusOK, agentapi.TalkResponse{UserText: userText, AIResponse: reply})
}

// answer runs one stateless turn against the agent's stored history.
func (s *server) answer(ctx context.Context, agentID, text string) (string, error) {
	agent, err := s.resolveAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	var history []session.Message
	if agentID != "" {
		entries, err := s.deps.Agents.History(ctx, agent.ID)
		if err != nil {
			return "", err
		}
		history = agents.SessionMessages(entries)
	}

	settings := session.DefaultSettings(agentLanguage(agent, s.deps.Config.DefaultLanguage))
	replier := s.replierFor(agent)
	reply, err := replier.Reply(ctx, session.ReplyRequest{Text: text, History: history, Settings: settings})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		return "", errors.Wrap(errBackend, err.Error())
	}
	reply = strings.TrimSpace(reply)
	s.deps.Metrics.RecordMessage(string(session.SenderUser))
	s.deps.Metrics.RecordMessage(string(session.SenderAssistant))

	if agentID != "" {
		if _, err := s.deps.Agents.AppendHistory(ctx, agent.ID, string(session.SenderUser), text); err != nil {
			return "", err
		}
		if _, err := s.deps.Agents.AppendHistory(ctx, agent.ID, string(session.SenderAssistant), reply); err != nil {
			return "", err
		}
	}
	return reply, nil
}

// resolveAgent returns the named agent, or the seeded default for an empty id.
func (s *server) resolveAgent(ctx context.Context, id string) (*agents.Agent, error) {
	if strings.TrimSpace(id) == "" {
		return s.deps.Agents.Seed(ctx)
	}
	return s.deps.Agents.Get(ctx, id)
}

// replierFor wraps the agent's replier with reply metrics.
func (s *server) replierFor(agent *agents.Agent) session.Replier {
	return timedReplier{
		inner:    s.deps.Replies(agent),
		provider: s.deps.Config.ReplyProvider,
		metrics:  s.deps.Metrics,
	}
}

var errBackend = errors.New("reply backend failed")

func (s *server) agentError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, agents.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	case errors.Is(err, agents.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errBackend):
		s.deps.Metrics.RecordError("reply")
		observability.LoggerFromContext(c.Request().Context()).Error("reply failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "reply failed")
	}
	s.deps.Metrics.RecordError("store")
	observability.LoggerFromContext(c.Request().Context()).Error("agent request failed", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

// twilioStatus records call progress for an emergency call.
func (s *server) twilioStatus(c echo.Context) error {
	params := twiliomw.TwilioParams(c)
	status := params["CallStatus"]
	log := observability.LoggerFromContext(c.Request().Context())
	log.Info("emergency call status", "call_sid", params["CallSid"], "status", status, "to", params["To"])

	switch status {
	case "failed", "busy", "no-answer", "canceled":
		s.deps.Metrics.RecordNotification("call_status", errors.Errorf("call %s", status))
	case "completed":
		s.deps.Metrics.RecordNotification("call_status", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func agentLanguage(agent *agents.Agent, fallback string) i18n.Language {
	if agent != nil && agent.Language.Valid() {
		return agent.Language
	}
	return i18n.Language(fallback)
}

type timedReplier struct {
	inner    session.Replier
	provider string
	metrics  *metrics.Metrics
}

func (t timedReplier) Reply(ctx context.Context, req session.ReplyRequest) (string, error) {
	start := time.Now()
	reply, err := t.inner.Reply(ctx, req)
	if err == nil {
		t.metrics.RecordReply(t.provider, time.Since(start))
	}
	return reply, err
}
