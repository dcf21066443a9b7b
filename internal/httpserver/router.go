// Package httpserver exposes the agent REST surface, the realtime
// conversation socket and the Twilio status callback over Echo.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/aura-companion/internal/agents"
	"github.com/chadiek/aura-companion/internal/capture"
	"github.com/chadiek/aura-companion/internal/config"
	"github.com/chadiek/aura-companion/internal/escalation"
	"github.com/chadiek/aura-companion/internal/metrics"
	twiliomw "github.com/chadiek/aura-companion/internal/middleware"
	"github.com/chadiek/aura-companion/internal/notify"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/session"
	"github.com/chadiek/aura-companion/internal/speech"
)

// ReplierFactory builds the reply collaborator for one agent.
type ReplierFactory func(agent *agents.Agent) session.Replier

// Deps are the collaborators shared by every request. Only Agents and
// Replies are required; a nil adapter disables the matching capability.
type Deps struct {
	Config      config.Config
	Agents      *agents.Service
	Replies     ReplierFactory
	Streamer    capture.StreamTranscriber
	Transcriber session.AudioTranscriber
	Synthesizer speech.Synthesizer
	Archiver    capture.Archiver
	Notifier    escalation.Notifier
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type server struct {
	deps Deps
	log  *slog.Logger
}

// New creates a configured Echo server instance.
func New(deps Deps) *echo.Echo {
	if deps.Logger == nil {
		deps.Logger = observability.Logger()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("")
	}
	s := &server{deps: deps, log: deps.Logger.With("component", "http")}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(observability.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))

	api := e.Group("/api/v1")
	api.POST("/agents/", s.createAgent)
	api.GET("/agents/", s.listAgents)
	api.GET("/agents/:id", s.getAgent)
	api.PUT("/agents/:id", s.updateAgent)
	api.DELETE("/agents/:id", s.deleteAgent)
	api.GET("/chat/history/:agentId", s.chatHistory)
	api.POST("/chat", s.chat)
	api.POST("/talk", s.talk)

	e.GET("/ws", s.serveWS)

	cfg := deps.Config
	e.POST(notify.StatusCallbackPath, s.twilioStatus,
		twiliomw.TwilioAuth(func() string { return cfg.TwilioAuthToken }, cfg.PublicBaseURL))
	return e
}
