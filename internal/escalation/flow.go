// Package escalation runs the SOS confirm-and-countdown flow for a session.
package escalation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/session"
)

// State is the escalation flow state.
type State string

const (
	StateIdle         State = "idle"
	StateConfirming   State = "confirming"
	StateCountingDown State = "counting_down"
	StateTriggered    State = "triggered"
	StateCancelled    State = "cancelled"
)

const (
	DefaultCountdown = 5 * time.Second
	DefaultTick      = time.Second
	notifyTimeout    = 20 * time.Second
)

// ErrInvalidTransition is returned when a call does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid escalation transition")

// Target is the conversation the flow speaks through.
type Target interface {
	InterruptSpeech()
	Acknowledge(ctx context.Context, systemText, ackText string) error
}

// Alert describes a triggered emergency for outside notification.
type Alert struct {
	UserName string
	Language i18n.Language
	At       time.Time
}

// Notifier reaches the emergency contact.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// EventKind tells state changes from countdown ticks.
type EventKind string

const (
	EventState EventKind = "state"
	EventTick  EventKind = "tick"
)

// Event is delivered to observers. Remaining is in whole ticks.
type Event struct {
	Kind      EventKind
	State     State
	Remaining int
}

// Options configures a Flow. Zero values take the defaults.
type Options struct {
	Countdown time.Duration
	Tick      time.Duration
	// Settings reports the session settings at trigger time.
	Settings func() session.Settings
	Notifier Notifier
	Logger   *slog.Logger
	// NewTicker is replaced in tests.
	NewTicker func(d time.Duration) (ticks <-chan time.Time, stop func())
	Now       func() time.Time
}

// Flow is safe for concurrent use. Observers run synchronously in state
// order and must not call back into the Flow.
type Flow struct {
	target Target
	opts   Options
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	remaining int
	cd        *countdown
	observers []func(Event)
}

type countdown struct {
	stop chan struct{}
	once sync.Once
}

func (c *countdown) halt() { c.once.Do(func() { close(c.stop) }) }

func New(target Target, opts Options) *Flow {
	if opts.Countdown <= 0 {
		opts.Countdown = DefaultCountdown
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Settings == nil {
		opts.Settings = func() session.Settings { return session.DefaultSettings(i18n.English) }
	}
	if opts.Logger == nil {
		opts.Logger = observability.Logger()
	}
	if opts.NewTicker == nil {
		opts.NewTicker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Flow{target: target, opts: opts, log: opts.Logger, ctx: ctx, cancel: cancel, state: StateIdle}
}

// Subscribe registers an observer.
func (f *Flow) Subscribe(fn func(Event)) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Remaining returns the ticks left while counting down, zero otherwise.
func (f *Flow) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateCountingDown {
		return 0
	}
	return f.remaining
}

// Request opens the confirmation step and silences any speech in flight.
func (f *Flow) Request() error {
	f.mu.Lock()
	if f.state != StateIdle {
		f.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "request from %s", f.state)
	}
	f.setStateLocked(StateConfirming)
	f.mu.Unlock()

	f.target.InterruptSpeech()
	return nil
}

// Confirm starts the countdown.
func (f *Flow) Confirm() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateConfirming {
		return errors.Wrapf(ErrInvalidTransition, "confirm from %s", f.state)
	}
	f.remaining = int(f.opts.Countdown / f.opts.Tick)
	if f.remaining < 1 {
		f.remaining = 1
	}
	cd := &countdown{stop: make(chan struct{})}
	f.cd = cd
	f.setStateLocked(StateCountingDown)
	f.emitLocked(Event{Kind: EventTick, State: StateCountingDown, Remaining: f.remaining})

	ticks, stop := f.opts.NewTicker(f.opts.Tick)
	go f.run(cd, ticks, stop)
	return nil
}

// Cancel abandons the request before it triggers. Nothing is appended to the
// conversation.
func (f *Flow) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateConfirming && f.state != StateCountingDown {
		return errors.Wrapf(ErrInvalidTransition, "cancel from %s", f.state)
	}
	if f.cd != nil {
		f.cd.halt()
		f.cd = nil
	}
	f.log.Info("emergency request cancelled", "remaining", f.remaining)
	f.remaining = 0
	f.setStateLocked(StateCancelled)
	f.setStateLocked(StateIdle)
	return nil
}

// Close stops any running countdown and aborts pending notifications.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.cd != nil {
		f.cd.halt()
		f.cd = nil
	}
	f.mu.Unlock()
	f.cancel()
}

func (f *Flow) run(cd *countdown, ticks <-chan time.Time, stop func()) {
	defer stop()
	for {
		select {
		case <-cd.stop:
			return
		case <-f.ctx.Done():
			return
		case <-ticks:
			if f.tick(cd) {
				return
			}
		}
	}
}

// tick advances the countdown and reports whether it has finished.
func (f *Flow) tick(cd *countdown) bool {
	f.mu.Lock()
	if f.cd != cd {
		f.mu.Unlock()
		return true
	}
	f.remaining--
	if f.remaining > 0 {
		f.emitLocked(Event{Kind: EventTick, State: StateCountingDown, Remaining: f.remaining})
		f.mu.Unlock()
		return false
	}
	f.cd = nil
	f.setStateLocked(StateTriggered)
	f.mu.Unlock()

	f.trigger()
	return true
}

func (f *Flow) trigger() {
	settings := f.opts.Settings()
	lang := settings.Language
	f.log.Warn("emergency escalation triggered", "user", settings.UserName, "lang", lang)

	f.target.InterruptSpeech()
	if err := f.target.Acknowledge(f.ctx, i18n.T(lang, i18n.KeySOSEmergency), i18n.T(lang, i18n.KeySOSResponse)); err != nil {
		f.log.Error("emergency acknowledgement failed", "error", err)
	}

	if f.opts.Notifier != nil && f.ctx.Err() == nil {
		ctx, cancel := context.WithTimeout(f.ctx, notifyTimeout)
		err := f.opts.Notifier.Notify(ctx, Alert{UserName: settings.UserName, Language: lang, At: f.opts.Now()})
		cancel()
		if err != nil {
			f.log.Error("emergency contact notification failed", "error", err)
		}
	}

	f.mu.Lock()
	f.setStateLocked(StateIdle)
	f.mu.Unlock()
}

func (f *Flow) setStateLocked(s State) {
	f.state = s
	f.emitLocked(Event{Kind: EventState, State: s})
}

func (f *Flow) emitLocked(ev Event) {
	for _, fn := range f.observers {
		fn(ev)
	}
}
