package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/chadiek/aura-companion/internal/agents"
	"github.com/chadiek/aura-companion/internal/capture"
	"github.com/chadiek/aura-companion/internal/config"
	"github.com/chadiek/aura-companion/internal/escalation"
	"github.com/chadiek/aura-companion/internal/httpserver"
	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/infra/storage"
	"github.com/chadiek/aura-companion/internal/llm"
	"github.com/chadiek/aura-companion/internal/metrics"
	"github.com/chadiek/aura-companion/internal/notify"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/session"
	"github.com/chadiek/aura-companion/internal/speech"
	"github.com/chadiek/aura-companion/internal/transcript"
	"github.com/chadiek/aura-companion/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := observability.NewLogger(cfg.LogLevel)
	observability.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := agents.NewService(store)
	if _, err := svc.Seed(ctx); err != nil {
		return errors.Wrap(err, "seed default agent")
	}

	replies, err := replierFactory(ctx, cfg)
	if err != nil {
		return err
	}
	m := metrics.New("aura")
	deps := httpserver.Deps{
		Config:  cfg,
		Agents:  svc,
		Replies: replies,
		Metrics: m,
		Logger:  log,
	}
	if cfg.AssemblyAIKey != "" {
		deps.Streamer = transcript.NewAssemblyAI(cfg.AssemblyAIKey)
	}
	if cfg.OpenAIKey != "" {
		deps.Transcriber = transcript.NewWhisper(cfg.OpenAIKey)
	}
	deps.Synthesizer = synthesizer(cfg)
	deps.Archiver = archiver(cfg, log)
	deps.Notifier = notifier(cfg, m)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           httpserver.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
			_ = server.Close()
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (agents.Store, func(), error) {
	if cfg.Store == "sqlite" {
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
	return storage.NewMemoryStore(), func() {}, nil
}

func replierFactory(ctx context.Context, cfg config.Config) (httpserver.ReplierFactory, error) {
	var model llm.ChatModel
	switch cfg.ReplyProvider {
	case "cerebras":
		model = llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
	case "openai":
		model = llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	case "gemini":
		g, err := llm.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		model = g
	default:
		canned := llm.NewCannedReplier(cfg.ReplyDelay)
		return func(*agents.Agent) session.Replier { return canned }, nil
	}
	return func(a *agents.Agent) session.Replier {
		return llm.NewCompanion(model, a.Persona())
	}, nil
}

// synthesizer routes Vietnamese to ElevenLabs and everything else to Deepgram.
func synthesizer(cfg config.Config) speech.Synthesizer {
	var fallback speech.Synthesizer
	if cfg.DeepgramKey != "" {
		fallback = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel)
	}
	router := speech.NewLanguageRouter(fallback)
	if cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID != "" {
		router.Route(i18n.Vietnamese, tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID))
	}
	if router.Empty() {
		return nil
	}
	return router
}

func archiver(cfg config.Config, log *slog.Logger) capture.Archiver {
	if !cfg.SupabaseEnabled() {
		return nil
	}
	a, err := storage.NewSupabaseArchive(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket)
	if err != nil {
		log.Warn("recording archive disabled", "error", err)
		return nil
	}
	return a
}

func notifier(cfg config.Config, m *metrics.Metrics) escalation.Notifier {
	if !cfg.TwilioEnabled() {
		return nil
	}
	return notify.NewTwilio(notify.Config{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		From:          cfg.TwilioFrom,
		To:            cfg.EmergencyContact,
		PublicBaseURL: cfg.PublicBaseURL,
		Call:          true,
	}).WithRecorder(m)
}
