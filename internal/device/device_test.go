package device

import (
	"errors"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mono48k = types.Format{SampleRate: 48000, Channels: 1}

func TestBufferBytesWholeFrames(t *testing.T) {
	opts := Options{Buffer: 20 * time.Millisecond}
	assert.Equal(t, 960*2, opts.BufferBytes(mono48k))
	assert.Equal(t, 960*4, opts.BufferBytes(types.Format{SampleRate: 48000, Channels: 2}))
	assert.Equal(t, 2, Options{}.BufferBytes(mono48k))
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New("pulse", Options{})
	assert.Error(t, err)

	b, err := New("null", Options{Buffer: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "null", b.Name())
}

func TestArbiterRejectsSecondOwner(t *testing.T) {
	a := NewArbiter()
	require.NoError(t, a.Acquire("capture-1"))
	require.NoError(t, a.Acquire("capture-1"))

	err := a.Acquire("playback-1")
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, "capture-1", a.Owner())

	a.Release("playback-1")
	assert.Equal(t, "capture-1", a.Owner())

	a.Release("capture-1")
	assert.Equal(t, "", a.Owner())
	assert.NoError(t, a.Acquire("playback-1"))
}

func TestVirtualCaptureDeliversOnlyWhileRunning(t *testing.T) {
	v := NewVirtual(Options{Buffer: 10 * time.Millisecond})
	var got int
	s, err := v.OpenCapture(mono48k, Callbacks{Data: func(pcm []byte) { got += len(pcm) }})
	require.NoError(t, err)

	assert.False(t, v.PumpCapture(make([]byte, 100)))
	require.NoError(t, s.Start())
	assert.True(t, v.CaptureRunning())
	assert.True(t, v.PumpCapture(make([]byte, 2000)))
	assert.Equal(t, 2000, got)

	require.NoError(t, s.Close())
	assert.False(t, v.PumpCapture(make([]byte, 100)))
	assert.Equal(t, 2000, got)
	assert.ErrorIs(t, s.Start(), types.ErrInvalidState)
}

func TestVirtualPlaybackStopsAtShortFill(t *testing.T) {
	v := NewVirtual(Options{Buffer: 10 * time.Millisecond})
	remaining := 700
	s, err := v.OpenPlayback(mono48k, Callbacks{Fill: func(out []byte) int {
		n := min(len(out), remaining)
		for i := range n {
			out[i] = 1
		}
		remaining -= n
		return n
	}})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	out := v.PumpPlayback(480)
	assert.Len(t, out, 960)
	assert.Equal(t, byte(1), out[699])
	assert.Equal(t, byte(0), out[700])
}

func TestVirtualOpenFailureWrapsTaxonomy(t *testing.T) {
	v := NewVirtual(Options{})
	v.FailCapture = errors.New("busy")
	_, err := v.OpenCapture(mono48k, Callbacks{})
	assert.ErrorIs(t, err, types.ErrDeviceUnavailable)

	v.FailPlayback = errors.New("gone")
	_, err = v.OpenPlayback(mono48k, Callbacks{})
	assert.ErrorIs(t, err, types.ErrOutputDeviceUnavailable)

	_, err = v.OpenCapture(mono48k, Callbacks{})
	assert.NoError(t, err)
}

func TestVirtualFailReportsOnce(t *testing.T) {
	v := NewVirtual(Options{Buffer: 10 * time.Millisecond})
	var reported []error
	s, err := v.OpenCapture(mono48k, Callbacks{Error: func(err error) { reported = append(reported, err) }})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	v.Fail(true, types.ErrDeviceUnavailable)
	v.Fail(true, types.ErrDeviceUnavailable)
	assert.Len(t, reported, 1)
	assert.False(t, v.CaptureRunning())
}

func TestNullBackendPacesCapture(t *testing.T) {
	v := NewNull(Options{Buffer: 5 * time.Millisecond})
	delivered := make(chan int, 16)
	s, err := v.OpenCapture(mono48k, Callbacks{Data: func(pcm []byte) {
		select {
		case delivered <- len(pcm):
		default:
		}
	}})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Close()

	select {
	case n := <-delivered:
		assert.Equal(t, 240*2, n)
	case <-time.After(time.Second):
		t.Fatal("null capture delivered nothing")
	}
}
