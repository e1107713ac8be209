package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

// Virtual is a backend without hardware. Streams run only when pumped,
// either by the caller (PumpCapture/PumpPlayback) or, for the null backend,
// by a real-time ticker that feeds silence and discards output.
type Virtual struct {
	opts Options
	pace bool

	mu       sync.Mutex
	capture  *virtualStream
	playback *virtualStream

	// FailCapture and FailPlayback, when set, make the next open fail.
	FailCapture  error
	FailPlayback error
}

// NewVirtual creates a manually pumped backend.
func NewVirtual(opts Options) *Virtual {
	return &Virtual{opts: opts}
}

// NewNull creates a self-pacing backend: capture yields silence and
// playback output is discarded, both at the real-time rate.
func NewNull(opts Options) *Virtual {
	return &Virtual{opts: opts, pace: true}
}

// Name implements Backend.
func (v *Virtual) Name() string {
	if v.pace {
		return "null"
	}
	return "virtual"
}

// OpenCapture implements Backend.
func (v *Virtual) OpenCapture(f types.Format, cb Callbacks) (Stream, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.FailCapture; err != nil {
		v.FailCapture = nil
		return nil, fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
	}
	s := &virtualStream{format: f, cb: cb, bufSize: v.opts.BufferBytes(f), period: v.opts.Period(f), pace: v.pace, capture: true}
	v.capture = s
	return s, nil
}

// OpenPlayback implements Backend.
func (v *Virtual) OpenPlayback(f types.Format, cb Callbacks) (Stream, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.FailPlayback; err != nil {
		v.FailPlayback = nil
		return nil, fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err)
	}
	s := &virtualStream{format: f, cb: cb, bufSize: v.opts.BufferBytes(f), period: v.opts.Period(f), pace: v.pace}
	v.playback = s
	return s, nil
}

// PumpCapture delivers pcm to the open capture stream in buffer-sized
// chunks. It returns false when no capture stream is running.
func (v *Virtual) PumpCapture(pcm []byte) bool {
	v.mu.Lock()
	s := v.capture
	v.mu.Unlock()
	return s != nil && s.deliver(pcm)
}

// PumpPlayback pulls frames of output from the open playback stream, one
// buffer at a time, and returns the rendered PCM. It returns nil when no
// playback stream is running. Pumping past the end of the material reports
// the stream as drained.
func (v *Virtual) PumpPlayback(frames int) []byte {
	v.mu.Lock()
	s := v.playback
	v.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.render(frames)
}

// Fail reports err through the open stream's Error callback, as a device
// disappearing mid-stream would.
func (v *Virtual) Fail(capture bool, err error) {
	v.mu.Lock()
	s := v.playback
	if capture {
		s = v.capture
	}
	v.mu.Unlock()
	if s != nil {
		s.fail(err)
	}
}

// CaptureRunning reports whether a capture stream is started.
func (v *Virtual) CaptureRunning() bool {
	v.mu.Lock()
	s := v.capture
	v.mu.Unlock()
	return s != nil && s.isRunning()
}

// PlaybackRunning reports whether a playback stream is started.
func (v *Virtual) PlaybackRunning() bool {
	v.mu.Lock()
	s := v.playback
	v.mu.Unlock()
	return s != nil && s.isRunning()
}

type virtualStream struct {
	format  types.Format
	cb      Callbacks
	bufSize int
	period  time.Duration
	pace    bool
	capture bool

	// pump serializes callbacks, as a single audio thread would.
	pump    sync.Mutex
	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
}

func (s *virtualStream) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *virtualStream) deliver(pcm []byte) bool {
	s.pump.Lock()
	defer s.pump.Unlock()
	for len(pcm) > 0 {
		if !s.isRunning() {
			return false
		}
		n := min(len(pcm), s.bufSize)
		if s.cb.Data != nil {
			s.cb.Data(pcm[:n])
		}
		pcm = pcm[n:]
	}
	return s.isRunning()
}

func (s *virtualStream) render(frames int) []byte {
	s.pump.Lock()
	defer s.pump.Unlock()

	want := frames * s.format.FrameSize()
	out := make([]byte, 0, want)
	buf := make([]byte, s.bufSize)
	short := false
	for len(out) < want {
		if !s.isRunning() {
			break
		}
		chunk := buf[:min(len(buf), want-len(out))]
		n := s.cb.Fill(chunk)
		clear(chunk[n:])
		out = append(out, chunk...)
		if n < len(chunk) {
			short = true
			break
		}
	}
	// Rendering here is instantaneous, so the tail is out as soon as it was pulled.
	if short && s.cb.Drained != nil {
		s.cb.Drained()
	}
	return out
}

func (s *virtualStream) fail(err error) {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if wasRunning && s.cb.Error != nil {
		s.cb.Error(err)
	}
}

// Start implements Stream.
func (s *virtualStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: stream closed", types.ErrInvalidState)
	}
	if s.running {
		return nil
	}
	s.running = true
	if s.pace {
		s.stop = make(chan struct{})
		go s.paceLoop(s.stop)
	}
	return nil
}

// paceLoop drives the stream at the real-time rate for the null backend.
func (s *virtualStream) paceLoop(stop chan struct{}) {
	frames := s.bufSize / s.format.FrameSize()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	silence := make([]byte, s.bufSize)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.capture {
				s.deliver(silence)
			} else {
				s.render(frames)
			}
		}
	}
}

// Stop implements Stream.
func (s *virtualStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

// Close implements Stream.
func (s *virtualStream) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
