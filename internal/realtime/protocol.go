// Package realtime defines the WebSocket protocol between a client and its
// conversation session, and a reconnecting client for it.
package realtime

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/session"
)

// Client to server message types. Binary frames carry PCM16LE 16 kHz mono.
const (
	TypeHello      = "hello"
	TypeText       = "text"
	TypeVoiceStart = "voice_start"
	TypeVoiceEnd   = "voice_end"
	TypeMicDenied  = "mic_denied"
	TypeSOSRequest = "sos_request"
	TypeSOSConfirm = "sos_confirm"
	TypeSOSCancel  = "sos_cancel"
	TypeSettings   = "settings"
	TypeStopSpeech = "stop_speech"
)

// Server to client message types. Binary frames carry 48 kHz PCM or Opus
// frames between audio_start and audio_end.
const (
	TypeReady      = "ready"
	TypeState      = "state"
	TypeMessage    = "message"
	TypeInterim    = "interim"
	TypeNotice     = "notice"
	TypeSOS        = "sos"
	TypeLevel      = "level"
	TypeError      = "error"
	TypeAudioStart = "audio_start"
	TypeAudioEnd   = "audio_end"
)

// Audio formats announced by audio_start.
const (
	FormatPCM48k = "pcm_s16le_48000"
	FormatOpus   = "opus_48000_20ms"
)

var ErrUnknownType = errors.New("unknown message type")

// ClientMessage is any JSON frame sent by the client.
type ClientMessage struct {
	Type     string            `json:"type"`
	AgentID  string            `json:"agent_id,omitempty"`
	Settings *session.Settings `json:"settings,omitempty"`
	// Microphone is false when the client has no capture device.
	Microphone *bool  `json:"microphone,omitempty"`
	Text       string `json:"text,omitempty"`
}

// ServerMessage is any JSON frame sent by the server.
type ServerMessage struct {
	Type      string            `json:"type"`
	State     string            `json:"state,omitempty"`
	Message   *session.Message  `json:"message,omitempty"`
	Messages  []session.Message `json:"messages,omitempty"`
	Settings  *session.Settings `json:"settings,omitempty"`
	Text      string            `json:"text,omitempty"`
	Key       string            `json:"key,omitempty"`
	Remaining *int              `json:"remaining,omitempty"`
	Value     *int              `json:"value,omitempty"`
	Error     string            `json:"error,omitempty"`
	Format    string            `json:"format,omitempty"`
	Speech    *bool             `json:"speech,omitempty"`
	Capture   *bool             `json:"capture,omitempty"`
}

// DecodeClient parses and validates a client frame.
func DecodeClient(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "decode client message")
	}
	switch m.Type {
	case TypeHello, TypeText, TypeVoiceStart, TypeVoiceEnd, TypeMicDenied,
		TypeSOSRequest, TypeSOSConfirm, TypeSOSCancel, TypeSettings, TypeStopSpeech:
	default:
		return m, errors.Wrapf(ErrUnknownType, "%q", m.Type)
	}
	if m.Type == TypeSettings && m.Settings == nil {
		return m, errors.New("settings message without settings")
	}
	return m, nil
}

func Ready(msgs []session.Message, settings session.Settings, speech, capture bool) ServerMessage {
	if msgs == nil {
		msgs = []session.Message{}
	}
	return ServerMessage{Type: TypeReady, Messages: msgs, Settings: &settings, Speech: &speech, Capture: &capture}
}

func State(state session.ActivityState) ServerMessage {
	return ServerMessage{Type: TypeState, State: string(state)}
}

func Message(m session.Message) ServerMessage {
	return ServerMessage{Type: TypeMessage, Message: &m}
}

func Interim(text string) ServerMessage {
	return ServerMessage{Type: TypeInterim, Text: text}
}

func Notice(key, text string) ServerMessage {
	return ServerMessage{Type: TypeNotice, Key: key, Text: text}
}

func SOS(state string, remaining int) ServerMessage {
	return ServerMessage{Type: TypeSOS, State: state, Remaining: &remaining}
}

func Level(v int) ServerMessage {
	return ServerMessage{Type: TypeLevel, Value: &v}
}

func Error(err error) ServerMessage {
	return ServerMessage{Type: TypeError, Error: err.Error()}
}

func AudioStart(format string) ServerMessage {
	return ServerMessage{Type: TypeAudioStart, Format: format}
}

func AudioEnd() ServerMessage {
	return ServerMessage{Type: TypeAudioEnd}
}

// FromEvent maps a session event to its wire message.
func FromEvent(ev session.Event) (ServerMessage, bool) {
	switch ev.Kind {
	case session.EventState:
		return State(ev.State), true
	case session.EventMessage:
		if ev.Message == nil {
			return ServerMessage{}, false
		}
		return Message(*ev.Message), true
	case session.EventInterim:
		return Interim(ev.Text), true
	case session.EventLevel:
		return Level(ev.Level), true
	case session.EventError:
		if ev.Err == nil {
			return ServerMessage{}, false
		}
		return Error(ev.Err), true
	}
	return ServerMessage{}, false
}
