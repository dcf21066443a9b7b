package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// Message is one immutable turn in the conversation.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// newMessage stamps a message with a time-sortable id.
func newMessage(sender Sender, text string, now time.Time) Message {
	return Message{ID: xid.NewWithTime(now).String(), Text: text, Sender: sender, Timestamp: now}
}

var (
	// ErrBusy is returned when an operation is rejected by the current activity state.
	ErrBusy = errors.New("session busy")
	// ErrCaptureUnavailable is returned when no voice capture adapter is configured.
	ErrCaptureUnavailable = errors.New("voice capture unavailable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// SpeakOptions configures one utterance.
type SpeakOptions struct {
	Rate float64
	Lang Language
}

// SpeechOutput plays text aloud. Speak blocks until playback completes or is
// interrupted; a new Speak pre-empts the previous one. Stop is idempotent.
type SpeechOutput interface {
	Speak(ctx context.Context, text string, opts SpeakOptions) error
	Stop()
}

// CaptureResult is what a finished capture yields: a transcript, raw audio for
// server-side transcription, or nothing.
type CaptureResult struct {
	Transcript  string
	Audio       []byte
	ContentType string
	AutoStopped bool
}

// CaptureHooks lets the capture adapter report progress back to the session.
type CaptureHooks struct {
	// Interim receives live caption text. Display only.
	Interim func(text string)
	// Level receives the input level (0-100) for the visualizer.
	Level func(level int)
	// Ended fires when a capture finishes without Stop (auto-stop or device failure).
	Ended func(result CaptureResult, err error)
}

// VoiceCapture owns the microphone for one capture at a time.
type VoiceCapture interface {
	Start(ctx context.Context, hooks CaptureHooks) error
	Stop(ctx context.Context) (CaptureResult, error)
}

// ReplyRequest is handed to the Replier for every user turn.
type ReplyRequest struct {
	Text     string
	History  []Message
	Settings Settings
}

// Replier produces the assistant reply for a user message.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// AudioTranscriber turns an audio capture into text on the server.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string, lang Language) (string, error)
}

// HistoryRecorder persists appended messages.
type HistoryRecorder interface {
	Record(ctx context.Context, msg Message) error
}

// EventKind classifies session events.
type EventKind string

const (
	EventState   EventKind = "state"
	EventMessage EventKind = "message"
	EventInterim EventKind = "interim"
	EventLevel   EventKind = "level"
	EventError   EventKind = "error"
)

// Event is delivered to subscribers in the order transitions are applied.
type Event struct {
	Kind    EventKind
	State   ActivityState
	Message *Message
	Text    string
	Level   int
	Err     error
}
