package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/observability"
)

// ErrSpeechInterrupted is returned by SpeechOutput.Speak when a newer utterance
// or Stop cut the current one short.
var ErrSpeechInterrupted = errors.New("speech interrupted")

// Config wires a Session to its collaborators. Replier is required; the
// speech, capture and transcription adapters are optional and their absence
// degrades the matching capability.
type Config struct {
	Replier     Replier
	Speech      SpeechOutput
	Capture     VoiceCapture
	Transcriber AudioTranscriber
	History     HistoryRecorder
	Settings    Settings
	// Welcome, when set, is appended as the first assistant message.
	Welcome string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Session owns the message history and the activity state of one
// conversation and sequences input -> reply -> playback.
type Session struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      ActivityState
	messages   []Message
	settings   Settings
	closed     bool
	turn       uint64 // bumped whenever an outstanding reply or playback must be dropped
	captureGen uint64
	finalizing bool

	subs  []func(Event)
	queue []Event
	wake  chan struct{}
	done  chan struct{}
}

// New constructs a Session in the idle state and starts its event dispatcher.
func New(cfg Config) (*Session, error) {
	if cfg.Replier == nil {
		return nil, errors.New("session: replier is required")
	}
	if cfg.Settings == (Settings{}) {
		cfg.Settings = DefaultSettings("")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "session: invalid settings")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Logger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		log:      cfg.Logger,
		now:      cfg.Now,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
		settings: cfg.Settings,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if cfg.History != nil {
		s.subs = append(s.subs, s.recordHistory)
	}
	if w := strings.TrimSpace(cfg.Welcome); w != "" {
		s.messages = append(s.messages, newMessage(SenderAssistant, w, s.now()))
	}
	go s.dispatch()
	return s, nil
}

// Subscribe registers fn to receive every subsequent event, in order.
// fn runs on the dispatcher goroutine and may call back into the Session.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// State returns the current activity state.
func (s *Session) State() ActivityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the history in append order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the settings after validation. Playback already in
// flight keeps its original rate and language.
func (s *Session) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// SpeechAvailable reports whether a speech output adapter is configured.
func (s *Session) SpeechAvailable() bool { return s.cfg.Speech != nil }

// CaptureAvailable reports whether a voice capture adapter is configured.
func (s *Session) CaptureAvailable() bool { return s.cfg.Capture != nil }

// SubmitUserText appends a user message and requests a reply. Text that is
// empty after trimming is ignored. Returns ErrBusy unless the session is idle.
func (s *Session) SubmitUserText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	effects, ok := s.fireLocked(TriggerSubmit)
	if !ok {
		s.mu.Unlock()
		return ErrBusy
	}
	after := s.applyLocked(effects, payload{user: text})
	s.mu.Unlock()
	after()
	observability.LoggerFromContext(ctx).Debug("user text submitted", "chars", len(text))
	return nil
}

// BeginVoiceCapture moves to listening and starts the capture adapter. A
// failed start (e.g. microphone permission denied) returns the session to
// idle and the error to the caller.
func (s *Session) BeginVoiceCapture(ctx context.Context) error {
	if s.cfg.Capture == nil {
		return ErrCaptureUnavailable
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.fireLocked(TriggerCaptureStart); !ok {
		s.mu.Unlock()
		return ErrBusy
	}
	s.captureGen++
	gen := s.captureGen
	s.finalizing = false
	s.mu.Unlock()

	hooks := CaptureHooks{
		Interim: s.InterimTranscript,
		Level:   s.reportLevel,
		Ended: func(res CaptureResult, err error) {
			s.captureEnded(gen, res, err)
		},
	}
	if err := s.cfg.Capture.Start(ctx, hooks); err != nil {
		s.mu.Lock()
		if s.captureGen == gen {
			s.fireLocked(TriggerCaptureFailed)
		}
		s.emitLocked(Event{Kind: EventError, Err: err})
		s.mu.Unlock()
		return errors.Wrap(err, "start voice capture")
	}
	return nil
}

// EndVoiceCapture stops the capture adapter and submits its transcript. An
// empty result returns the session to idle. Calling it when not listening is
// a no-op.
func (s *Session) EndVoiceCapture(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateListening || s.finalizing || s.cfg.Capture == nil {
		s.mu.Unlock()
		return nil
	}
	s.finalizing = true
	gen := s.captureGen
	s.mu.Unlock()

	res, err := s.cfg.Capture.Stop(ctx)
	s.finishCapture(gen, res, err)
	if err != nil {
		return errors.Wrap(err, "stop voice capture")
	}
	return nil
}

// InterimTranscript publishes live caption text. It never changes state.
func (s *Session) InterimTranscript(text string) {
	s.mu.Lock()
	s.emitLocked(Event{Kind: EventInterim, Text: text})
	s.mu.Unlock()
}

// Acknowledge appends a system message and a spoken assistant
// acknowledgement, pre-empting any reply or playback in flight. An active
// voice capture is left running.
func (s *Session) Acknowledge(ctx context.Context, systemText, ackText string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	effects, ok := s.fireLocked(TriggerAck)
	if !ok {
		s.mu.Unlock()
		return ErrBusy
	}
	after := s.applyLocked(effects, payload{system: systemText, assistant: ackText})
	s.mu.Unlock()
	after()
	observability.LoggerFromContext(ctx).Info("acknowledgement queued")
	return nil
}

// InterruptSpeech stops playback immediately. Safe to call at any time.
func (s *Session) InterruptSpeech() {
	if s.cfg.Speech != nil {
		s.cfg.Speech.Stop()
	}
}

// Close stops background work and releases the adapters.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	listening := s.state == StateListening
	s.mu.Unlock()

	s.InterruptSpeech()
	if listening && s.cfg.Capture != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = s.cfg.Capture.Stop(ctx)
		cancel()
	}
	s.cancel()
	<-s.done
}

type payload struct {
	user      string
	system    string
	assistant string
}

// fireLocked applies trigger to the state machine and emits a state event on change.
func (s *Session) fireLocked(trigger Trigger) ([]Effect, bool) {
	next, effects, ok := Transition(s.state, trigger)
	if !ok {
		s.log.Debug("trigger ignored", "state", s.state, "trigger", trigger.String())
		return nil, false
	}
	if next != s.state {
		s.state = next
		s.emitLocked(Event{Kind: EventState, State: next})
	}
	return effects, true
}

// applyLocked performs the synchronous effects and returns the asynchronous
// ones bundled in a func to be run after the lock is released.
func (s *Session) applyLocked(effects []Effect, p payload) func() {
	var deferred []func()
	for _, e := range effects {
		switch e {
		case EffectAppendUser:
			s.appendLocked(SenderUser, p.user)
		case EffectAppendSystem:
			s.appendLocked(SenderSystem, p.system)
		case EffectAppendAssistant:
			s.appendLocked(SenderAssistant, p.assistant)
		case EffectRequestReply:
			s.turn++
			turn := s.turn
			req := ReplyRequest{Text: p.user, History: s.historyLocked(), Settings: s.settings}
			deferred = append(deferred, func() { go s.requestReply(turn, req) })
		case EffectStopSpeech:
			s.turn++
			deferred = append(deferred, s.InterruptSpeech)
		case EffectSpeak:
			turn := s.turn
			text := p.assistant
			opts := s.settings.SpeakOptions()
			deferred = append(deferred, func() { go s.speak(turn, text, opts) })
		case EffectStartCapture:
			// started by BeginVoiceCapture so the adapter error reaches the caller
		}
	}
	return func() {
		for _, f := range deferred {
			f()
		}
	}
}

func (s *Session) appendLocked(sender Sender, text string) {
	msg := newMessage(sender, text, s.now())
	s.messages = append(s.messages, msg)
	s.emitLocked(Event{Kind: EventMessage, Message: &msg})
}

func (s *Session) historyLocked() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) requestReply(turn uint64, req ReplyRequest) {
	reply, err := s.cfg.Replier.Reply(s.ctx, req)
	reply = strings.TrimSpace(reply)

	s.mu.Lock()
	if s.turn != turn || s.closed {
		s.mu.Unlock()
		s.log.Info("reply discarded", "reason", "superseded")
		return
	}
	if err == nil && reply == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		s.fireLocked(TriggerReplyFailed)
		s.emitLocked(Event{Kind: EventError, Err: errors.Wrap(err, "reply")})
		s.mu.Unlock()
		s.log.Error("reply failed", "error", err)
		return
	}
	effects, ok := s.fireLocked(TriggerReplyReady)
	if !ok {
		s.mu.Unlock()
		return
	}
	after := s.applyLocked(effects, payload{assistant: reply})
	s.mu.Unlock()
	after()
}

func (s *Session) speak(turn uint64, text string, opts SpeakOptions) {
	var err error
	if s.cfg.Speech != nil {
		err = s.cfg.Speech.Speak(s.ctx, text, opts)
	}
	interrupted := errors.Is(err, ErrSpeechInterrupted) || errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		// engine failures never leave the session stuck in speaking
		s.log.Warn("speech output failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !interrupted {
		s.emitLocked(Event{Kind: EventError, Err: errors.Wrap(err, "speech output")})
	}
	if s.turn == turn && !s.closed {
		s.fireLocked(TriggerPlaybackDone)
	}
}

func (s *Session) captureEnded(gen uint64, res CaptureResult, err error) {
	s.mu.Lock()
	if gen != s.captureGen || s.state != StateListening || s.finalizing {
		s.mu.Unlock()
		return
	}
	s.finalizing = true
	s.mu.Unlock()
	if res.AutoStopped {
		s.log.Info("voice capture auto-stopped")
	}
	s.finishCapture(gen, res, err)
}

func (s *Session) finishCapture(gen uint64, res CaptureResult, err error) {
	if err != nil {
		s.mu.Lock()
		if gen == s.captureGen && s.state == StateListening {
			s.fireLocked(TriggerCaptureFailed)
		}
		s.emitLocked(Event{Kind: EventError, Err: err})
		s.mu.Unlock()
		return
	}
	text := strings.TrimSpace(res.Transcript)
	if text == "" && len(res.Audio) > 0 && s.cfg.Transcriber != nil {
		lang := s.Settings().Language
		go func() {
			t, terr := s.cfg.Transcriber.Transcribe(s.ctx, res.Audio, res.ContentType, lang)
			if terr != nil {
				s.log.Error("server-side transcription failed", "error", terr)
				s.finishCapture(gen, CaptureResult{}, errors.Wrap(terr, "transcribe"))
				return
			}
			s.completeCapture(gen, t)
		}()
		return
	}
	s.completeCapture(gen, text)
}

func (s *Session) completeCapture(gen uint64, text string) {
	text = strings.TrimSpace(text)
	s.mu.Lock()
	if gen != s.captureGen || s.state != StateListening || s.closed {
		s.mu.Unlock()
		return
	}
	if text == "" {
		s.fireLocked(TriggerCaptureEmpty)
		s.mu.Unlock()
		return
	}
	effects, _ := s.fireLocked(TriggerCaptureText)
	after := s.applyLocked(effects, payload{user: text})
	s.mu.Unlock()
	after()
}

func (s *Session) reportLevel(level int) {
	s.mu.Lock()
	s.emitLocked(Event{Kind: EventLevel, Level: level})
	s.mu.Unlock()
}

func (s *Session) recordHistory(ev Event) {
	if ev.Kind != EventMessage || ev.Message == nil {
		return
	}
	if err := s.cfg.History.Record(s.ctx, *ev.Message); err != nil {
		s.log.Warn("history record failed", "error", err, "message_id", ev.Message.ID)
	}
}

func (s *Session) emitLocked(ev Event) {
	s.queue = append(s.queue, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued events to subscribers in order, outside the lock.
func (s *Session) dispatch() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		subs := append([]func(Event){}, s.subs...)
		s.mu.Unlock()
		for _, ev := range batch {
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
}
