// Package capture implements push-to-talk voice capture on top of a
// transport-fed microphone.
package capture

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/chadiek/aura-companion/internal/i18n"
	"github.com/chadiek/aura-companion/internal/observability"
	"github.com/chadiek/aura-companion/internal/session"
)

// ErrAlreadyCapturing is returned by Start while a capture is active.
var ErrAlreadyCapturing = errors.New("voice capture already active")

// Mode selects where speech becomes text.
type Mode string

const (
	// ModeTranscript streams audio to a realtime transcriber.
	ModeTranscript Mode = "transcript"
	// ModeAudio buffers the capture and hands back a WAV blob.
	ModeAudio Mode = "audio"
)

const (
	DefaultMaxDuration   = 30 * time.Second
	DefaultFinalizeGrace = 500 * time.Millisecond
)

// StreamTranscriber opens realtime transcription streams.
type StreamTranscriber interface {
	Supports(lang i18n.Language) bool
	Open(ctx context.Context, lang i18n.Language, onPartial func(text string)) (Stream, error)
}

// Stream is one realtime transcription session.
type Stream interface {
	SendPCM16KLE(pcm []byte) error
	// Finish flushes pending audio and returns the full transcript.
	Finish(ctx context.Context) (string, error)
	Close() error
}

// Archiver stores finished audio captures.
type Archiver interface {
	Archive(ctx context.Context, name string, wav []byte) error
}

// Options configures a Recorder. Zero values take the defaults.
type Options struct {
	Mode          Mode
	MaxDuration   time.Duration
	FinalizeGrace time.Duration
	// Language reports the session language at capture start.
	Language    func() i18n.Language
	Transcriber StreamTranscriber
	Archiver    Archiver
	Logger      *slog.Logger
	// AfterFunc schedules the auto-stop; replaced in tests.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Recorder implements session.VoiceCapture. One capture runs at a time.
type Recorder struct {
	mic  Microphone
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	active *run
}

var _ session.VoiceCapture = (*Recorder)(nil)

type run struct {
	hooks    session.CaptureHooks
	mode     Mode
	stream   Stream
	stopAuto func() bool
	stopping atomic.Bool
	pumped   chan struct{}

	mu  sync.Mutex
	pcm bytes.Buffer
}

func NewRecorder(mic Microphone, opts Options) *Recorder {
	if opts.Mode == "" {
		opts.Mode = ModeTranscript
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.FinalizeGrace <= 0 {
		opts.FinalizeGrace = DefaultFinalizeGrace
	}
	if opts.Language == nil {
		opts.Language = func() i18n.Language { return i18n.English }
	}
	if opts.Logger == nil {
		opts.Logger = observability.Logger()
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	return &Recorder{mic: mic, opts: opts, log: opts.Logger}
}

// Start opens the microphone and begins a capture.
func (r *Recorder) Start(ctx context.Context, hooks session.CaptureHooks) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrAlreadyCapturing
	}

	frames, err := r.mic.Open(ctx)
	if err != nil {
		return errors.Wrap(err, "open microphone")
	}

	lang := r.opts.Language()
	rn := &run{hooks: hooks, mode: r.opts.Mode, pumped: make(chan struct{})}
	if rn.mode == ModeTranscript {
		if r.opts.Transcriber == nil || !r.opts.Transcriber.Supports(lang) {
			rn.mode = ModeAudio
		} else {
			stream, serr := r.opts.Transcriber.Open(context.WithoutCancel(ctx), lang, hooks.Interim)
			if serr != nil {
				r.log.Warn("realtime transcription unavailable, buffering audio", "error", serr)
				rn.mode = ModeAudio
			} else {
				rn.stream = stream
			}
		}
	}

	r.active = rn
	go r.pump(rn, frames)
	rn.stopAuto = r.opts.AfterFunc(r.opts.MaxDuration, func() { r.autoStop(rn) })
	r.log.Debug("voice capture started", "mode", rn.mode, "lang", lang)
	return nil
}

// Stop ends the active capture and returns what it heard. Without an active
// capture it returns an empty result.
func (r *Recorder) Stop(ctx context.Context) (session.CaptureResult, error) {
	r.mu.Lock()
	rn := r.active
	r.active = nil
	r.mu.Unlock()
	if rn == nil {
		return session.CaptureResult{}, nil
	}
	return r.finish(ctx, rn, false)
}

func (r *Recorder) autoStop(rn *run) {
	r.mu.Lock()
	if r.active != rn {
		r.mu.Unlock()
		return
	}
	r.active = nil
	r.mu.Unlock()

	r.log.Info("voice capture reached max duration", "max", r.opts.MaxDuration)
	res, err := r.finish(context.Background(), rn, true)
	if rn.hooks.Ended != nil {
		rn.hooks.Ended(res, err)
	}
}

func (r *Recorder) finish(ctx context.Context, rn *run, auto bool) (session.CaptureResult, error) {
	rn.stopping.Store(true)
	if rn.stopAuto != nil {
		rn.stopAuto()
	}
	_ = r.mic.Close()
	<-rn.pumped

	res := session.CaptureResult{AutoStopped: auto}
	if rn.stream != nil {
		gctx, cancel := context.WithTimeout(ctx, r.opts.FinalizeGrace)
		text, err := rn.stream.Finish(gctx)
		cancel()
		_ = rn.stream.Close()
		text = strings.TrimSpace(text)
		if err != nil && text == "" {
			return res, errors.Wrap(err, "finish transcription")
		}
		res.Transcript = text
		return res, nil
	}

	rn.mu.Lock()
	pcm := append([]byte(nil), rn.pcm.Bytes()...)
	rn.mu.Unlock()
	if len(pcm) == 0 {
		return res, nil
	}
	res.Audio = EncodeWAV(pcm, SampleRate)
	res.ContentType = "audio/wav"
	if r.opts.Archiver != nil {
		go r.archive(res.Audio)
	}
	return res, nil
}

func (r *Recorder) archive(wav []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	name := time.Now().UTC().Format("2006/01/02/") + xid.New().String() + ".wav"
	if err := r.opts.Archiver.Archive(ctx, name, wav); err != nil {
		r.log.Warn("capture archive failed", "error", err, "name", name)
	}
}

func (r *Recorder) pump(rn *run, frames <-chan []byte) {
	defer close(rn.pumped)
	for frame := range frames {
		if rn.hooks.Level != nil {
			rn.hooks.Level(Level(frame))
		}
		if rn.stream != nil {
			if err := rn.stream.SendPCM16KLE(frame); err != nil {
				r.log.Warn("send audio to transcriber failed", "error", err)
			}
			continue
		}
		rn.mu.Lock()
		rn.pcm.Write(frame)
		rn.mu.Unlock()
	}
	if rn.stopping.Load() {
		return
	}
	// the microphone went away without Stop
	go r.deviceLost(rn)
}

func (r *Recorder) deviceLost(rn *run) {
	r.mu.Lock()
	if r.active != rn {
		r.mu.Unlock()
		return
	}
	r.active = nil
	r.mu.Unlock()

	rn.stopping.Store(true)
	if rn.stopAuto != nil {
		rn.stopAuto()
	}
	if rn.stream != nil {
		_ = rn.stream.Close()
	}
	err := r.mic.Err()
	if err == nil {
		err = ErrDeviceLost
	}
	r.log.Warn("voice capture ended by device", "error", err)
	if rn.hooks.Ended != nil {
		rn.hooks.Ended(session.CaptureResult{}, err)
	}
}
