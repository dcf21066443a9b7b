// Package audio paces synthesized 48kHz speech out to a client in 20ms frames.
package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pkg/errors"
)

const (
	SampleRate   = 48000
	FrameSamples = 960 // 20ms at 48kHz
	FrameSize    = 20 * time.Millisecond
)

// SampleWriter receives paced frames, e.g. a websocket connection.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// FrameEncoder turns one frame of PCM samples into a packet.
// *opus.Encoder satisfies it.
type FrameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// NewOpusEncoder returns a mono VoIP Opus encoder at 48kHz.
func NewOpusEncoder() (FrameEncoder, error) {
	enc, err := opus.NewEncoder(SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, errors.Wrap(err, "opus encoder")
	}
	return enc, nil
}

// PCMEncoder passes frames through as PCM16LE.
type PCMEncoder struct{}

func (PCMEncoder) Encode(pcm []int16, data []byte) (int, error) {
	if len(data) < 2*len(pcm) {
		return 0, errors.New("pcm encoder: buffer too small")
	}
	for i, v := range pcm {
		data[2*i] = byte(v)
		data[2*i+1] = byte(uint16(v) >> 8)
	}
	return 2 * len(pcm), nil
}

// PacedWriter buffers 48kHz PCM mono, encodes full frames and writes them to
// the SampleWriter at real-time pace.
type PacedWriter struct {
	enc          FrameEncoder
	out          SampleWriter
	pcmBuf       []int16
	frameSamples int
	frames       chan []byte
	pending      int64
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
}

// NewPacedWriter starts the pacer goroutine. Call Close to stop it.
func NewPacedWriter(enc FrameEncoder, out SampleWriter) *PacedWriter {
	w := &PacedWriter{
		enc:          enc,
		out:          out,
		frameSamples: FrameSamples,
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
	}
	go w.pacer()
	return w
}

// WritePCM appends PCM16LE bytes and queues every complete frame.
func (w *PacedWriter) WritePCM(pcmBytes []byte) {
	if len(pcmBytes) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	need := len(pcmBytes) / 2
	startLen := len(w.pcmBuf)
	if cap(w.pcmBuf)-startLen < need {
		tmp := make([]int16, startLen, startLen+need+2048)
		copy(tmp, w.pcmBuf)
		w.pcmBuf = tmp
	}
	w.pcmBuf = w.pcmBuf[:startLen+need]
	for i := 0; i < need; i++ {
		w.pcmBuf[startLen+i] = int16(uint16(pcmBytes[2*i]) | uint16(pcmBytes[2*i+1])<<8)
	}

	buf := make([]byte, 4000)
	for len(w.pcmBuf) >= w.frameSamples {
		w.encodeFrame(w.pcmBuf[:w.frameSamples], buf)
		copy(w.pcmBuf, w.pcmBuf[w.frameSamples:])
		w.pcmBuf = w.pcmBuf[:len(w.pcmBuf)-w.frameSamples]
	}
}

// FlushTail pads the remaining PCM to a full frame and appends ~200ms of
// silence so the end of the utterance is not clipped.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := make([]byte, 4000)
	if len(w.pcmBuf) > 0 {
		pad := make([]int16, w.frameSamples)
		copy(pad, w.pcmBuf)
		w.encodeFrame(pad, buf)
		w.pcmBuf = w.pcmBuf[:0]
	}
	silence := make([]int16, w.frameSamples)
	for i := 0; i < 10; i++ {
		w.encodeFrame(silence, buf)
	}
}

// Drain blocks until every queued frame has been written.
func (w *PacedWriter) Drain(ctx context.Context) error {
	ticker := time.NewTicker(FrameSize / 2)
	defer ticker.Stop()
	for atomic.LoadInt64(&w.pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Reset drops queued frames and buffered PCM immediately.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		select {
		case <-w.frames:
			atomic.AddInt64(&w.pending, -1)
		default:
			w.pcmBuf = w.pcmBuf[:0]
			return
		}
	}
}

// Close stops the pacer.
func (w *PacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *PacedWriter) encodeFrame(frame []int16, buf []byte) {
	n, err := w.enc.Encode(frame, buf)
	if err != nil || n <= 0 {
		return
	}
	pkt := make([]byte, n)
	copy(pkt, buf[:n])
	w.pushFrame(pkt)
}

func (w *PacedWriter) pacer() {
	ticker := time.NewTicker(FrameSize)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.out.WriteSample(media.Sample{Data: frame, Duration: FrameSize})
				atomic.AddInt64(&w.pending, -1)
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, blocking until space is available or stopped.
func (w *PacedWriter) pushFrame(pkt []byte) {
	atomic.AddInt64(&w.pending, 1)
	select {
	case <-w.stopCh:
		atomic.AddInt64(&w.pending, -1)
	case w.frames <- pkt:
	}
}
