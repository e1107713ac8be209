package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
)

// Malgo drives audio hardware through miniaudio. Device callbacks run on
// miniaudio's realtime thread.
type Malgo struct {
	opts Options
	ctx  *malgo.AllocatedContext
}

// NewMalgo initializes a miniaudio context.
func NewMalgo(opts Options) (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, util.WrapError("initialize audio context", err)
	}
	return &Malgo{opts: opts, ctx: ctx}, nil
}

// Name implements Backend.
func (m *Malgo) Name() string { return "malgo" }

// Close releases the miniaudio context.
func (m *Malgo) Close() error {
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

func (m *Malgo) deviceConfig(kind malgo.DeviceType, f types.Format) malgo.DeviceConfig {
	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(max(m.opts.Buffer.Milliseconds(), 1))
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	return cfg
}

// OpenCapture implements Backend.
func (m *Malgo) OpenCapture(f types.Format, cb Callbacks) (Stream, error) {
	s := &malgoStream{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if s.active() && cb.Data != nil {
				cb.Data(input)
			}
		},
		Stop: func() {
			if s.active() && cb.Error != nil {
				cb.Error(fmt.Errorf("%w: capture device stopped", types.ErrDeviceUnavailable))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, m.deviceConfig(malgo.Capture, f), callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
	}
	s.dev = dev
	s.unavailable = types.ErrDeviceUnavailable
	return s, nil
}

// OpenPlayback implements Backend.
func (m *Malgo) OpenPlayback(f types.Format, cb Callbacks) (Stream, error) {
	s := &malgoStream{}
	// tail is touched only on the device thread.
	var tail bool
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			if !s.active() {
				clear(output)
				return
			}
			// The period holding the last samples went out on the previous call.
			if tail && cb.Drained != nil {
				cb.Drained()
			}
			n := cb.Fill(output)
			clear(output[n:])
			tail = n < len(output)
		},
		Stop: func() {
			if s.active() && cb.Error != nil {
				cb.Error(fmt.Errorf("%w: playback device stopped", types.ErrOutputDeviceUnavailable))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, m.deviceConfig(malgo.Playback, f), callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrOutputDeviceUnavailable, err)
	}
	s.dev = dev
	s.unavailable = types.ErrOutputDeviceUnavailable
	return s, nil
}

type malgoStream struct {
	dev         *malgo.Device
	unavailable error

	mu      sync.Mutex
	running bool
	closed  bool
}

func (s *malgoStream) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start implements Stream.
func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: stream closed", s.unavailable)
	}
	if s.running {
		return nil
	}
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("%w: %w", s.unavailable, err)
	}
	s.running = true
	return nil
}

// Stop implements Stream. Callbacks are discarded from the moment the flag
// flips, before the device itself drains.
func (s *malgoStream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()
	return s.dev.Stop()
}

// Close implements Stream.
func (s *malgoStream) Close() error {
	err := s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.dev.Uninit()
		s.closed = true
	}
	return err
}
