package capture

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrPermissionDenied is returned when the user refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrUnsupported is returned when the client has no usable microphone.
	ErrUnsupported = errors.New("voice capture unsupported")
	// ErrDeviceLost is reported when the microphone stops mid-capture.
	ErrDeviceLost = errors.New("microphone stopped unexpectedly")
)

// Microphone yields 16kHz mono PCM16LE frames between Open and Close.
// If the frame channel closes before Close, Err reports why.
type Microphone interface {
	Open(ctx context.Context) (<-chan []byte, error)
	Close() error
	Err() error
}

// FrameMicrophone is a Microphone fed by the transport: the client streams
// PCM frames and Push hands them to whoever opened the device.
type FrameMicrophone struct {
	mu          sync.Mutex
	frames      chan []byte
	open        bool
	denied      bool
	unavailable bool
	err         error
}

var _ Microphone = (*FrameMicrophone)(nil)

func NewFrameMicrophone() *FrameMicrophone {
	return &FrameMicrophone{}
}

func (m *FrameMicrophone) Open(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.unavailable:
		return nil, ErrUnsupported
	case m.denied:
		return nil, ErrPermissionDenied
	case m.open:
		return nil, ErrAlreadyCapturing
	}
	m.frames = make(chan []byte, 256)
	m.open = true
	m.err = nil
	return m.frames, nil
}

// Push delivers one frame. Frames arriving while closed, or faster than the
// reader drains them, are dropped.
func (m *FrameMicrophone) Push(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || len(pcm) == 0 {
		return
	}
	b := make([]byte, len(pcm))
	copy(b, pcm)
	select {
	case m.frames <- b:
	default:
	}
}

// SetAvailable records whether the client has a microphone at all.
func (m *FrameMicrophone) SetAvailable(ok bool) {
	m.mu.Lock()
	m.unavailable = !ok
	m.mu.Unlock()
}

// Deny records that the user refused access and fails an open capture.
func (m *FrameMicrophone) Deny() {
	m.mu.Lock()
	m.denied = true
	m.mu.Unlock()
	m.Fail(ErrPermissionDenied)
}

// Allow clears a previous Deny.
func (m *FrameMicrophone) Allow() {
	m.mu.Lock()
	m.denied = false
	m.mu.Unlock()
}

// Fail ends the open capture with err.
func (m *FrameMicrophone) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return
	}
	m.err = err
	m.open = false
	close(m.frames)
}

func (m *FrameMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		m.open = false
		close(m.frames)
	}
	return nil
}

func (m *FrameMicrophone) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
