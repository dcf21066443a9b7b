package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/speech"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	elevenLabsModel   = "eleven_flash_v2_5"
	// ElevenLabs accepts voice speed in [0.7, 1.2].
	minElevenSpeed = 0.7
	maxElevenSpeed = 1.2
)

// ElevenLabsClient streams multilingual speech over the HTTP stream endpoint.
type ElevenLabsClient struct {
	APIKey  string
	VoiceID string
	BaseURL string
	Model   string
	HTTP    *http.Client
}

var _ speech.Synthesizer = (*ElevenLabsClient)(nil)

func NewElevenLabsClient(apiKey, voiceID string) *ElevenLabsClient {
	return &ElevenLabsClient{
		APIKey:  apiKey,
		VoiceID: voiceID,
		BaseURL: elevenLabsBaseURL,
		Model:   elevenLabsModel,
		HTTP:    &http.Client{Timeout: 0},
	}
}

// StreamPCM48k streams pcm_48000 audio for text.
func (e *ElevenLabsClient) StreamPCM48k(ctx context.Context, text string, opts speech.SynthesisOptions) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if e.APIKey == "" || e.VoiceID == "" {
			errCh <- errors.New("elevenlabs: api key or voice id missing")
			return
		}
		if text == "" {
			return
		}
		if err := e.httpStream(ctx, text, opts, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func clampSpeed(rate float64) float64 {
	if rate == 0 {
		return 1
	}
	return math.Max(minElevenSpeed, math.Min(maxElevenSpeed, rate))
}

func (e *ElevenLabsClient) httpStream(ctx context.Context, text string, opts speech.SynthesisOptions, pcmCh chan<- []byte) error {
	log := observability.LoggerFromContext(ctx).With("provider", "elevenlabs")

	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return errors.Wrap(err, "elevenlabs: base url")
	}
	u.Path = "/v1/text-to-speech/" + e.VoiceID + "/stream"
	q := u.Query()
	q.Set("output_format", "pcm_48000")
	// lower streaming latency target (0..4 where lower is lower latency, may trade quality)
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": e.Model,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
			"speed":             clampSpeed(opts.Rate),
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{80, 120, 160, 200},
		},
	}
	if opts.Lang != "" {
		body["language_code"] = string(opts.Lang)
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "elevenlabs: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "elevenlabs: http stream")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, string(b))
	}

	bufChunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(bufChunk)
		if n > 0 {
			if !logged {
				log.Debug("elevenlabs audio stream started", "first_chunk_bytes", n)
				logged = true
			}
			out := make([]byte, n)
			copy(out, bufChunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return errors.Wrap(rerr, "elevenlabs: read stream")
		}
	}
}
