package transcript

import (
	"bytes"
	"context"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/session"
)

// Whisper transcribes whole audio captures through the OpenAI audio API.
type Whisper struct {
	client *openai.Client
	model  string
}

var _ session.AudioTranscriber = (*Whisper)(nil)

func NewWhisper(apiKey string) *Whisper {
	return NewWhisperWithConfig(openai.DefaultConfig(apiKey))
}

func NewWhisperWithConfig(cfg openai.ClientConfig) *Whisper {
	return &Whisper{client: openai.NewClientWithConfig(cfg), model: openai.Whisper1}
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, contentType string, lang i18n.Language) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "capture" + extensionFor(contentType),
		Reader:   bytes.NewReader(audio),
		Language: string(lang),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", errors.Wrap(err, "whisper transcription")
	}
	return strings.TrimSpace(resp.Text), nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	case strings.Contains(contentType, "mp4"), strings.Contains(contentType, "m4a"):
		return ".m4a"
	default:
		return ".wav"
	}
}
