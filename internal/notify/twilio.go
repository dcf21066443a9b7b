// Package notify reaches the emergency contact when an escalation triggers.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
	"golang.org/x/time/rate"

	"github.com/chadiek/aura-companion/internal/escalation"
	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/observability"
)

// StatusCallbackPath receives Twilio call status updates.
const StatusCallbackPath = "/twilio/escalation-status"

var (
	// ErrRateLimited is returned when alerts arrive faster than the limiter allows.
	ErrRateLimited = errors.New("emergency notification rate limited")
	// ErrNotConfigured is returned when credentials or numbers are missing.
	ErrNotConfigured = errors.New("twilio notifier not configured")
)

// API is the subset of the Twilio REST client the notifier uses.
type API interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// Recorder observes notification outcomes per channel.
type Recorder interface {
	RecordNotification(channel string, err error)
}

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	// PublicBaseURL, when set, receives call status callbacks.
	PublicBaseURL string
	// Call places a voice call in addition to the SMS.
	Call bool
}

// Twilio sends an SMS and places a voice call to the emergency contact.
type Twilio struct {
	api      API
	cfg      Config
	limiter  *rate.Limiter
	recorder Recorder
	log      *slog.Logger
}

var _ escalation.Notifier = (*Twilio)(nil)

// NewTwilio builds a notifier on the Twilio REST API. At most one alert is
// sent every 30 seconds with a burst of three.
func NewTwilio(cfg Config) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewTwilioWithAPI(client.Api, cfg)
}

func NewTwilioWithAPI(api API, cfg Config) *Twilio {
	return &Twilio{
		api:     api,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 3),
		log:     observability.Logger().With("component", "notify"),
	}
}

// WithLimiter replaces the alert rate limiter.
func (t *Twilio) WithLimiter(l *rate.Limiter) *Twilio {
	t.limiter = l
	return t
}

// WithRecorder reports every send to r.
func (t *Twilio) WithRecorder(r Recorder) *Twilio {
	t.recorder = r
	return t
}

// Notify texts the contact and, when enabled, calls them. Both channels are
// attempted; the first failure is returned.
func (t *Twilio) Notify(ctx context.Context, alert escalation.Alert) error {
	if t.cfg.From == "" || t.cfg.To == "" {
		return ErrNotConfigured
	}
	if !t.limiter.Allow() {
		return ErrRateLimited
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body := AlertText(alert)
	log := observability.LoggerFromContext(ctx).With("to", t.cfg.To)

	var first error
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(t.cfg.To)
	params.SetFrom(t.cfg.From)
	params.SetBody(body)
	msg, err := t.api.CreateMessage(params)
	t.record("sms", err)
	if err != nil {
		first = errors.Wrap(err, "send emergency sms")
		log.Error("emergency sms failed", "error", err)
	} else {
		log.Info("emergency sms sent", "sid", deref(msg.Sid))
	}

	if t.cfg.Call && ctx.Err() == nil {
		call, err := t.call(alert, body)
		t.record("call", err)
		if err != nil {
			if first == nil {
				first = err
			}
			log.Error("emergency call failed", "error", err)
		} else {
			log.Info("emergency call placed", "sid", deref(call.Sid))
		}
	}
	return first
}

func (t *Twilio) call(alert escalation.Alert, body string) (*twilioApi.ApiV2010Call, error) {
	say := &twiml.VoiceSay{Message: body, Language: sayLanguage(alert.Language)}
	pause := &twiml.VoicePause{Length: "1"}
	repeat := &twiml.VoiceSay{Message: body, Language: sayLanguage(alert.Language)}
	doc, err := twiml.Voice([]twiml.Element{say, pause, repeat})
	if err != nil {
		return nil, errors.Wrap(err, "build emergency twiml")
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(t.cfg.To)
	params.SetFrom(t.cfg.From)
	params.SetTwiml(doc)
	if base := strings.TrimRight(t.cfg.PublicBaseURL, "/"); base != "" {
		params.SetStatusCallback(base + StatusCallbackPath)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	call, err := t.api.CreateCall(params)
	if err != nil {
		return nil, errors.Wrap(err, "place emergency call")
	}
	return call, nil
}

func (t *Twilio) record(channel string, err error) {
	if t.recorder != nil {
		t.recorder.RecordNotification(channel, err)
	}
}

// AlertText renders the localized alert body.
func AlertText(alert escalation.Alert) string {
	name := strings.TrimSpace(alert.UserName)
	if name == "" {
		name = i18n.T(alert.Language, i18n.KeyDefaultUserName)
	}
	return i18n.Format(alert.Language, i18n.KeySOSNotifyBody, map[string]string{"userName": name})
}

func sayLanguage(lang i18n.Language) string {
	if lang == i18n.Vietnamese {
		return "vi-VN"
	}
	return "en-US"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
