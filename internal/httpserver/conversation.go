package httpserver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/agents"
	"github.com/chadiek/aura-companion/internal/audio"
	"github.com/chadiek/aura-companion/internal/capture"
	"github.com/chadiek/aura-companion/internal/escalation"
	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/metrics"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/realtime"
	"github.com/chadiek/aura-companion/internal/session"
	"github.com/chadiek/aura-companion/internal/speech"
)

// conversation binds one socket to a session, its microphone, its speaker
// and its escalation flow.
type conversation struct {
	agent   *agents.Agent
	sess    *session.Session
	flow    *escalation.Flow
	mic     *capture.FrameMicrophone
	paced   *audio.PacedWriter
	out     *wsConn
	metrics *metrics.Metrics
	log     *slog.Logger
}

func (s *server) newConversation(ctx context.Context, out *wsConn, hello realtime.ClientMessage) (*conversation, error) {
	cfg := s.deps.Config
	agent, err := s.resolveAgent(ctx, hello.AgentID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve agent")
	}
	settings := session.DefaultSettings(agentLanguage(agent, cfg.DefaultLanguage))
	if hello.Settings != nil {
		if err := hello.Settings.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid settings")
		}
		settings = *hello.Settings
	}

	log := observability.LoggerFromContext(ctx).With("agent_id", agent.ID)
	cv := &conversation{
		agent:   agent,
		mic:     capture.NewFrameMicrophone(),
		out:     out,
		metrics: s.deps.Metrics,
		log:     log,
	}
	micAvailable := hello.Microphone == nil || *hello.Microphone
	cv.mic.SetAvailable(micAvailable)

	var speechOut session.SpeechOutput
	if s.deps.Synthesizer != nil {
		enc, format := s.encoder(log)
		cv.paced = audio.NewPacedWriter(enc, out)
		sink := &announcingSink{paced: cv.paced, out: out, format: format}
		speechOut = speech.NewSpeaker(s.deps.Synthesizer, sink).WithLogger(log)
	}

	var sess *session.Session
	recorder := capture.NewRecorder(cv.mic, capture.Options{
		Mode:        capture.Mode(cfg.CaptureMode),
		MaxDuration: cfg.CaptureMax,
		Language:    func() i18n.Language { return sess.Settings().Language },
		Transcriber: s.deps.Streamer,
		Archiver:    s.deps.Archiver,
		Logger:      log,
	})
	sess, err = session.New(session.Config{
		Replier:     s.replierFor(agent),
		Speech:      speechOut,
		Capture:     recorder,
		Transcriber: s.deps.Transcriber,
		History:     s.deps.Agents.Recorder(agent.ID),
		Settings:    settings,
		Welcome:     i18n.T(settings.Language, i18n.KeyWelcome),
		Logger:      log,
	})
	if err != nil {
		if cv.paced != nil {
			cv.paced.Close()
		}
		return nil, err
	}
	cv.sess = sess
	cv.flow = escalation.New(sess, escalation.Options{
		Countdown: cfg.SOSCountdown,
		Settings:  sess.Settings,
		Notifier:  s.deps.Notifier,
		Logger:    log,
	})
	sess.Subscribe(cv.onSessionEvent)
	cv.flow.Subscribe(cv.onEscalationEvent)
	cv.metrics.RecordSessionStart()

	out.sendJSON(realtime.Ready(sess.Messages(), settings, speechOut != nil, micAvailable))
	if speechOut == nil {
		cv.notice(i18n.KeySpeechUnsupported)
	}
	if !micAvailable {
		cv.notice(i18n.KeyCaptureUnsupported)
	}
	return cv, nil
}

// encoder picks the downlink codec, falling back to raw PCM.
func (s *server) encoder(log *slog.Logger) (audio.FrameEncoder, string) {
	if s.deps.Config.AudioCodec == "opus" {
		enc, err := audio.NewOpusEncoder()
		if err == nil {
			return enc, realtime.FormatOpus
		}
		log.Warn("opus unavailable, sending pcm", "error", err)
	}
	return audio.PCMEncoder{}, realtime.FormatPCM48k
}

// handle applies one client message.
func (cv *conversation) handle(ctx context.Context, msg realtime.ClientMessage) {
	var err error
	switch msg.Type {
	case realtime.TypeHello:
		err = errors.New("conversation already started")
	case realtime.TypeText:
		err = cv.sess.SubmitUserText(ctx, msg.Text)
	case realtime.TypeVoiceStart:
		err = cv.sess.BeginVoiceCapture(ctx)
		if err != nil && !errors.Is(err, session.ErrBusy) && !errors.Is(err, session.ErrCaptureUnavailable) {
			// reported through the session error event
			err = nil
		}
	case realtime.TypeVoiceEnd:
		go func() {
			if err := cv.sess.EndVoiceCapture(ctx); err != nil {
				cv.log.Info("voice capture ended with error", "error", err)
			}
		}()
	case realtime.TypeMicDenied:
		listening := cv.sess.State() == session.StateListening
		cv.mic.Deny()
		if !listening {
			cv.notice(i18n.KeyMicDenied)
		}
	case realtime.TypeSOSRequest:
		err = cv.flow.Request()
	case realtime.TypeSOSConfirm:
		err = cv.flow.Confirm()
	case realtime.TypeSOSCancel:
		err = cv.flow.Cancel()
	case realtime.TypeSettings:
		err = cv.sess.UpdateSettings(*msg.Settings)
	case realtime.TypeStopSpeech:
		cv.sess.InterruptSpeech()
	}
	if err != nil {
		cv.log.Debug("client message rejected", "type", msg.Type, "error", err)
		cv.out.sendJSON(realtime.Error(err))
	}
}

func (cv *conversation) onSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventMessage:
		if ev.Message != nil {
			cv.metrics.RecordMessage(string(ev.Message.Sender))
		}
	case session.EventError:
		cv.metrics.RecordError("session")
	}
	if msg, ok := realtime.FromEvent(ev); ok {
		cv.out.sendJSON(msg)
	}
	if ev.Kind == session.EventError {
		switch {
		case errors.Is(ev.Err, capture.ErrPermissionDenied):
			cv.notice(i18n.KeyMicDenied)
		case errors.Is(ev.Err, capture.ErrUnsupported):
			cv.notice(i18n.KeyCaptureUnsupported)
		}
	}
}

func (cv *conversation) onEscalationEvent(ev escalation.Event) {
	cv.out.sendJSON(realtime.SOS(string(ev.State), ev.Remaining))
	if ev.Kind != escalation.EventState {
		return
	}
	switch ev.State {
	case escalation.StateCountingDown:
		cv.notice(i18n.KeySOSCallingMessage)
	case escalation.StateTriggered:
		cv.metrics.RecordEscalation("triggered")
	case escalation.StateCancelled:
		cv.metrics.RecordEscalation("cancelled")
	}
}

func (cv *conversation) notice(key i18n.Key) {
	lang := cv.sess.Settings().Language
	cv.out.sendJSON(realtime.Notice(string(key), i18n.T(lang, key)))
}

func (cv *conversation) close() {
	cv.flow.Close()
	cv.sess.Close()
	if cv.paced != nil {
		cv.paced.Close()
	}
	cv.metrics.RecordSessionEnd()
	cv.log.Info("conversation closed")
}

// announcingSink brackets each utterance with audio_start and audio_end.
type announcingSink struct {
	paced  *audio.PacedWriter
	out    *wsConn
	format string

	mu   sync.Mutex
	open bool
}

func (a *announcingSink) WritePCM(pcm []byte) {
	a.mu.Lock()
	if !a.open {
		a.open = true
		a.out.sendJSON(realtime.AudioStart(a.format))
	}
	a.mu.Unlock()
	a.paced.WritePCM(pcm)
}

func (a *announcingSink) FlushTail() { a.paced.FlushTail() }

func (a *announcingSink) Drain(ctx context.Context) error {
	err := a.paced.Drain(ctx)
	a.end()
	return err
}

func (a *announcingSink) Reset() {
	a.paced.Reset()
	a.end()
}

func (a *announcingSink) end() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		a.open = false
		a.out.sendJSON(realtime.AudioEnd())
	}
}
