package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/audio"
	"github.com/oszuidwest/zwfm-cliprec/internal/device"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/wavfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureRig struct {
	capture *Capture
	virtual *device.Virtual
	store   *Store
	arbiter *device.Arbiter
}

func newRig(t *testing.T, auth Authorizer) *captureRig {
	t.Helper()
	store := openStore(t, t.TempDir())
	v := device.NewVirtual(device.Options{Buffer: 20 * time.Millisecond})
	arb := device.NewArbiter()
	c := NewCapture(v, arb, store, auth, CaptureConfig{Format: mono48k, MeterInterval: 10 * time.Millisecond})
	t.Cleanup(c.Close)
	return &captureRig{capture: c, virtual: v, store: store, arbiter: arb}
}

func silence(seconds float64) []byte {
	return make([]byte, int(seconds*48000)*2)
}

func fullScale(seconds float64) []byte {
	buf := make([]byte, int(seconds*48000)*2)
	for i := 0; i < len(buf); i += 2 {
		v := int16(32767)
		if (i/2)%2 == 1 {
			v = -32767
		}
		audio.PutSample(buf, i, v)
	}
	return buf
}

func partials(t *testing.T, dir string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, "*"+PartialExtension))
	require.NoError(t, err)
	return m
}

func TestCaptureDurationFromWrittenFrames(t *testing.T) {
	rig := newRig(t, Static(true))
	require.NoError(t, rig.capture.Start())
	assert.Equal(t, types.CaptureRecording, rig.capture.State())
	assert.Equal(t, Owner, rig.arbiter.Owner())

	require.True(t, rig.virtual.PumpCapture(silence(3.0)))
	rec, err := rig.capture.Stop()
	require.NoError(t, err)

	assert.InDelta(t, 3.0, rec.Duration, 1.0/48000)
	assert.Equal(t, types.CaptureIdle, rig.capture.State())
	assert.Equal(t, "", rig.arbiter.Owner())

	format, frames, err := wavfile.Probe(rec.Location)
	require.NoError(t, err)
	assert.Equal(t, mono48k, format)
	assert.InDelta(t, rec.Duration, format.FramesToSeconds(frames), 1.0/48000)

	items := rig.store.Enumerate()
	require.Len(t, items, 1)
	assert.Equal(t, rec, items[0])
	assert.Empty(t, partials(t, rig.store.Dir()))
}

func TestCaptureZeroLengthTake(t *testing.T) {
	rig := newRig(t, Static(true))
	require.NoError(t, rig.capture.Start())
	rec, err := rig.capture.Stop()
	require.NoError(t, err)
	assert.Zero(t, rec.Duration)

	pcm, err := wavfile.Decode(rec.Location)
	require.NoError(t, err)
	assert.Zero(t, pcm.Frames())
}

func TestSecondCaptureRejected(t *testing.T) {
	rig := newRig(t, Static(true))
	require.NoError(t, rig.capture.Start())
	require.True(t, rig.virtual.PumpCapture(silence(0.5)))

	err := rig.capture.Start()
	assert.ErrorIs(t, err, types.ErrInvalidState)
	err = rig.capture.RequestPermissionAndStart(context.Background())
	assert.ErrorIs(t, err, types.ErrInvalidState)

	assert.Equal(t, types.CaptureRecording, rig.capture.State())
	assert.True(t, rig.virtual.CaptureRunning())
	require.True(t, rig.virtual.PumpCapture(silence(0.5)))

	rec, err := rig.capture.Stop()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rec.Duration, 1.0/48000)
}

func TestCaptureRejectedWhileDeviceHeld(t *testing.T) {
	rig := newRig(t, Static(true))
	require.NoError(t, rig.arbiter.Acquire("playback"))

	err := rig.capture.Start()
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, types.CaptureIdle, rig.capture.State())
	assert.Equal(t, "playback", rig.arbiter.Owner())
}

func TestStopWhenIdle(t *testing.T) {
	rig := newRig(t, Static(true))
	_, err := rig.capture.Stop()
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.ErrorIs(t, rig.capture.Cancel(), types.ErrInvalidState)
}

func TestPermissionDenied(t *testing.T) {
	rig := newRig(t, Static(false))
	assert.Equal(t, types.PermissionDenied, rig.capture.CheckPermission())

	events, cancel := rig.capture.Subscribe()
	defer cancel()

	err := rig.capture.RequestPermissionAndStart(context.Background())
	assert.ErrorIs(t, err, types.ErrPermissionDenied)
	assert.Equal(t, types.CaptureIdle, rig.capture.State())
	assert.Equal(t, types.EventFailed, (<-events).Kind)

	assert.ErrorIs(t, rig.capture.Start(), types.ErrInvalidState)
	assert.Empty(t, rig.store.Enumerate())
}

func TestPromptGrantStartsRecording(t *testing.T) {
	prompt := NewPrompt()
	rig := newRig(t, prompt)
	assert.Equal(t, types.PermissionUndetermined, rig.capture.CheckPermission())

	done := make(chan error, 1)
	go func() { done <- rig.capture.RequestPermissionAndStart(context.Background()) }()

	require.Eventually(t, prompt.Pending, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.CapturePermissionPending, rig.capture.State())

	prompt.Resolve(true)
	require.NoError(t, <-done)
	assert.Equal(t, types.CaptureRecording, rig.capture.State())
}

func TestPromptDenyReturnsToIdle(t *testing.T) {
	prompt := NewPrompt()
	rig := newRig(t, prompt)

	done := make(chan error, 1)
	go func() { done <- rig.capture.RequestPermissionAndStart(context.Background()) }()
	require.Eventually(t, prompt.Pending, time.Second, 5*time.Millisecond)

	prompt.Resolve(false)
	assert.ErrorIs(t, <-done, types.ErrPermissionDenied)
	assert.Equal(t, types.CaptureIdle, rig.capture.State())
	assert.Equal(t, "", rig.arbiter.Owner())
}

func TestDeviceUnavailableLeavesNothing(t *testing.T) {
	rig := newRig(t, Static(true))
	rig.virtual.FailCapture = errors.New("no such device")

	err := rig.capture.Start()
	assert.ErrorIs(t, err, types.ErrDeviceUnavailable)
	assert.Equal(t, types.CaptureIdle, rig.capture.State())
	assert.Equal(t, "", rig.arbiter.Owner())
	assert.Empty(t, partials(t, rig.store.Dir()))
}

func TestDeviceLostMidTakeAborts(t *testing.T) {
	rig := newRig(t, Static(true))
	events, cancel := rig.capture.Subscribe()
	defer cancel()

	require.NoError(t, rig.capture.Start())
	require.True(t, rig.virtual.PumpCapture(silence(0.2)))
	rig.virtual.Fail(true, errors.New("unplugged"))

	require.Eventually(t, func() bool {
		return rig.capture.State() == types.CaptureIdle
	}, time.Second, 5*time.Millisecond)

	var failed *types.Event
	for failed == nil {
		ev := <-events
		if ev.Kind == types.EventFailed {
			failed = &ev
		}
	}
	assert.ErrorIs(t, failed.Err, types.ErrDeviceUnavailable)
	assert.Empty(t, rig.store.Enumerate())
	assert.Empty(t, partials(t, rig.store.Dir()))
	assert.Equal(t, "", rig.arbiter.Owner())
}

func TestCancelDiscardsTake(t *testing.T) {
	rig := newRig(t, Static(true))
	require.NoError(t, rig.capture.Start())
	require.True(t, rig.virtual.PumpCapture(silence(1)))

	require.NoError(t, rig.capture.Cancel())
	assert.Equal(t, types.CaptureIdle, rig.capture.State())
	assert.Empty(t, rig.store.Enumerate())
	assert.Empty(t, partials(t, rig.store.Dir()))

	entries, err := os.ReadDir(rig.store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, wavfile.Extension, filepath.Ext(e.Name()))
	}
}

func TestMeterTracksInput(t *testing.T) {
	rig := newRig(t, Static(true))
	events, cancel := rig.capture.Subscribe()
	defer cancel()

	require.NoError(t, rig.capture.Start())
	require.True(t, rig.virtual.PumpCapture(fullScale(0.5)))

	require.Eventually(t, func() bool {
		level, _ := rig.capture.Level()
		return level > 0.99
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return rig.capture.Elapsed() >= 0.5
	}, time.Second, 5*time.Millisecond)

	var levelEvent bool
	for !levelEvent {
		ev := <-events
		levelEvent = ev.Kind == types.EventLevel && ev.Level > 0.99
		if levelEvent {
			assert.GreaterOrEqual(t, ev.PeakLevel, ev.Level)
		}
	}

	_, err := rig.capture.Stop()
	require.NoError(t, err)
	level, peak := rig.capture.Level()
	assert.Zero(t, level)
	assert.Zero(t, peak)
}

func TestWriterOverflowIsStorageFailure(t *testing.T) {
	store := openStore(t, t.TempDir())
	v := device.NewVirtual(device.Options{Buffer: 20 * time.Millisecond})
	c := NewCapture(v, device.NewArbiter(), store, Static(true), CaptureConfig{Format: mono48k, QueueDepth: 1})
	t.Cleanup(c.Close)

	require.NoError(t, c.Start())
	v.PumpCapture(silence(10))

	require.Eventually(t, func() bool {
		return c.State() == types.CaptureIdle
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, store.Enumerate())
	assert.Empty(t, partials(t, store.Dir()))
}
