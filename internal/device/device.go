// Package device connects sessions to audio hardware. A Backend opens
// streams whose callbacks run on the audio thread; callbacks must copy what
// they keep and return quickly.
package device

import (
	"fmt"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

// Callbacks are invoked by a stream on its audio thread.
type Callbacks struct {
	// Data receives captured interleaved S16LE PCM. The slice is reused
	// after the call returns.
	Data func(pcm []byte)

	// Fill writes up to len(out) bytes of PCM to render and returns how
	// many it wrote. A short count marks the end of the material; the
	// remainder is rendered as silence.
	Fill func(out []byte) int

	// Drained reports that everything Fill returned before its short count
	// has been rendered by the device. It may be called again if Fill keeps
	// returning short counts.
	Drained func()

	// Error reports an asynchronous stream failure. The stream is stopped
	// when it is called.
	Error func(err error)
}

// Stream is an open capture or playback stream.
type Stream interface {
	// Start begins or resumes callbacks.
	Start() error
	// Stop halts callbacks within one buffer period. It does not wait for
	// the hardware to wind down.
	Stop() error
	// Close stops the stream and releases the device.
	Close() error
}

// Backend opens streams on a particular audio stack.
type Backend interface {
	// Name identifies the backend in logs and configuration.
	Name() string
	// OpenCapture opens an input stream. Failures wrap types.ErrDeviceUnavailable.
	OpenCapture(f types.Format, cb Callbacks) (Stream, error)
	// OpenPlayback opens an output stream. Failures wrap types.ErrOutputDeviceUnavailable.
	OpenPlayback(f types.Format, cb Callbacks) (Stream, error)
}

// Options configure a backend.
type Options struct {
	Input  string
	Output string
	Buffer time.Duration // audio buffer period
}

// BufferBytes returns the size of one buffer period of f, whole frames only.
func (o Options) BufferBytes(f types.Format) int {
	frames := int(o.Buffer.Seconds() * float64(f.SampleRate))
	return max(frames, 1) * f.FrameSize()
}

// Period returns the duration of one buffer of f.
func (o Options) Period(f types.Format) time.Duration {
	frames := o.BufferBytes(f) / f.FrameSize()
	return time.Duration(float64(frames) / float64(f.SampleRate) * float64(time.Second))
}

// New returns the backend registered under name.
func New(name string, opts Options) (Backend, error) {
	switch name {
	case "exec":
		return NewExec(opts), nil
	case "malgo":
		return NewMalgo(opts)
	case "null":
		return NewNull(opts), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}
