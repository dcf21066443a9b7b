package transcript

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/capture"
	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/observability"
)

const assemblyAIEndpoint = "wss://streaming.assemblyai.com/v3/ws"

// AssemblyAI message types
type BeginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type TurnMessage struct {
	Type          string `json:"type"`
	TurnOrder     int    `json:"turn_order"`
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type TerminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// AssemblyAI opens realtime streaming transcription sessions (v3 universal streaming).
type AssemblyAI struct {
	apiKey   string
	endpoint string
	dialer   websocket.Dialer
}

var _ capture.StreamTranscriber = (*AssemblyAI)(nil)

func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{
		apiKey:   apiKey,
		endpoint: assemblyAIEndpoint,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// WithEndpoint overrides the websocket URL.
func (a *AssemblyAI) WithEndpoint(u string) *AssemblyAI {
	a.endpoint = u
	return a
}

// Supports reports whether streaming recognition is available for lang.
// Universal streaming is English only; other languages go through batch transcription.
func (a *AssemblyAI) Supports(lang i18n.Language) bool {
	return a.apiKey != "" && lang == i18n.English
}

// Open dials a new streaming session. onPartial receives the running
// transcript every time AssemblyAI updates a turn.
func (a *AssemblyAI) Open(ctx context.Context, lang i18n.Language, onPartial func(string)) (capture.Stream, error) {
	if a.apiKey == "" {
		return nil, errors.New("assemblyai: API key is empty")
	}
	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "true")
	params.Set("encoding", "pcm_s16le")
	wsURL := a.endpoint + "?" + params.Encode()

	headers := http.Header{"Authorization": {a.apiKey}}
	log := observability.LoggerFromContext(ctx).With("provider", "assemblyai")

	conn, resp, err := a.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Warn("assemblyai handshake rejected", "status", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "assemblyai: connect")
	}

	s := &AssemblyAIStream{
		conn:       conn,
		log:        log,
		onPartial:  onPartial,
		turns:      map[int]string{},
		terminated: make(chan struct{}),
		readDone:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// AssemblyAIStream is one open streaming session.
type AssemblyAIStream struct {
	conn      *websocket.Conn
	log       *slog.Logger
	onPartial func(string)

	writeMu sync.Mutex

	mu         sync.Mutex
	turns      map[int]string
	readErr    error
	termOnce   sync.Once
	terminated chan struct{}
	readDone   chan struct{}
	closeOnce  sync.Once
}

// SendPCM16KLE forwards one 16kHz PCM16LE frame.
func (s *AssemblyAIStream) SendPCM16KLE(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Finish forces an endpoint, terminates the session and waits for the
// server to confirm, returning whatever transcript has arrived when ctx ends.
func (s *AssemblyAIStream) Finish(ctx context.Context) (string, error) {
	if err := s.writeJSON(map[string]string{"type": "ForceEndpoint"}); err != nil {
		s.log.Debug("assemblyai force endpoint failed", "error", err)
	}
	if err := s.writeJSON(map[string]string{"type": "Terminate"}); err != nil {
		return s.Text(), errors.Wrap(err, "assemblyai: terminate")
	}
	select {
	case <-s.terminated:
	case <-s.readDone:
	case <-ctx.Done():
		s.log.Debug("assemblyai finalize grace elapsed")
	}
	s.mu.Lock()
	err := s.readErr
	s.mu.Unlock()
	return s.Text(), err
}

// Text returns the transcript accumulated so far, turns in order.
func (s *AssemblyAIStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textLocked()
}

func (s *AssemblyAIStream) textLocked() string {
	orders := make([]int, 0, len(s.turns))
	for o := range s.turns {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if t := strings.TrimSpace(s.turns[o]); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (s *AssemblyAIStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func (s *AssemblyAIStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *AssemblyAIStream) readLoop() {
	defer close(s.readDone)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.terminated:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.mu.Lock()
					s.readErr = errors.Wrap(err, "assemblyai: read")
					s.mu.Unlock()
				}
			}
			return
		}
		s.processMessage(message)
	}
}

func (s *AssemblyAIStream) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		s.log.Warn("assemblyai: bad message", "error", err)
		return
	}
	switch base.Type {
	case "Begin":
		var msg BeginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Debug("assemblyai session began", "id", msg.ID, "expires_at", time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
		}
	case "Turn":
		var msg TurnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Warn("assemblyai: bad turn", "error", err)
			return
		}
		s.mu.Lock()
		s.turns[msg.TurnOrder] = msg.Transcript
		text := s.textLocked()
		s.mu.Unlock()
		if s.onPartial != nil && text != "" {
			s.onPartial(text)
		}
	case "Termination":
		var msg TerminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Debug("assemblyai session terminated", "audio_seconds", msg.AudioDurationSeconds, "session_seconds", msg.SessionDurationSeconds)
		}
		s.termOnce.Do(func() { close(s.terminated) })
	case "Error":
		var msg ErrorMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Warn("assemblyai error", "error", msg.Error)
			s.mu.Lock()
			s.readErr = errors.Errorf("assemblyai: %s", msg.Error)
			s.mu.Unlock()
		}
	default:
		s.log.Debug("assemblyai: unknown message type", "type", base.Type)
	}
}
