// Package speech turns assistant text into audio on a sink with
// last-call-wins interruption.
package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/session"
)

// SynthesisOptions are passed to a Synthesizer for each chunk.
type SynthesisOptions struct {
	Rate float64
	Lang i18n.Language
}

// Synthesizer streams 48kHz mono PCM16LE audio for text. The PCM channel is
// closed when synthesis ends; at most one error is sent on the error channel.
type Synthesizer interface {
	StreamPCM48k(ctx context.Context, text string, opts SynthesisOptions) (<-chan []byte, <-chan error)
}

// Sink consumes 48kHz PCM and delivers it to the listener.
type Sink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued audio immediately.
	Reset()
}

// Drainer is implemented by sinks that can report when queued audio has
// actually been played out.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Speaker implements session.SpeechOutput on top of a Synthesizer and a Sink.
type Speaker struct {
	synth Synthesizer
	sink  Sink
	log   *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
}

var _ session.SpeechOutput = (*Speaker)(nil)

// NewSpeaker returns a Speaker writing synthesized audio to sink.
func NewSpeaker(synth Synthesizer, sink Sink) *Speaker {
	return &Speaker{synth: synth, sink: sink, log: observability.Logger()}
}

// WithLogger overrides the logger.
func (s *Speaker) WithLogger(l *slog.Logger) *Speaker {
	s.log = l
	return s
}

// Speak plays text and blocks until the sink has received (and, for a
// Drainer, played) all audio. A concurrent Speak or Stop makes this call
// return session.ErrSpeechInterrupted.
func (s *Speaker) Speak(ctx context.Context, text string, opts session.SpeakOptions) error {
	spoken := Neutralize(text, opts.Lang)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(session.ErrSpeechInterrupted)
		s.sink.Reset()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer s.release(gen, cancel)

	if spoken == "" {
		return nil
	}
	synthOpts := SynthesisOptions{Rate: opts.Rate, Lang: opts.Lang}
	for _, chunk := range splitSentences(spoken) {
		if err := s.streamChunk(ctx, gen, chunk, synthOpts); err != nil {
			return err
		}
	}
	if !s.current(gen) {
		return session.ErrSpeechInterrupted
	}
	s.sink.FlushTail()
	if d, ok := s.sink.(Drainer); ok {
		if err := d.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return errors.Wrap(err, "drain audio")
		}
	}
	return nil
}

// Stop interrupts the current utterance, if any. Safe to call repeatedly.
func (s *Speaker) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.gen++
	s.mu.Unlock()
	if cancel != nil {
		cancel(session.ErrSpeechInterrupted)
	}
	s.sink.Reset()
}

func (s *Speaker) streamChunk(ctx context.Context, gen uint64, chunk string, opts SynthesisOptions) error {
	pcmCh, errCh := s.synth.StreamPCM48k(ctx, chunk, opts)
	for pcmCh != nil || errCh != nil {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				pcmCh = nil
				continue
			}
			if len(b) > 0 {
				s.write(gen, b)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return context.Cause(ctx)
				}
				s.log.Warn("speech synthesis failed", "error", err, "lang", opts.Lang)
				return errors.Wrap(err, "synthesize")
			}
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// write forwards pcm unless this utterance has been superseded.
func (s *Speaker) write(gen uint64, pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.sink.WritePCM(pcm)
}

func (s *Speaker) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Speaker) release(gen uint64, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	if s.gen == gen {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel(nil)
}
