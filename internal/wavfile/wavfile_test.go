package wavfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oszuidwest/zwfm-cliprec/internal/audio"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereo16k = types.Format{SampleRate: 16000, Channels: 2}

func TestWriteDecodeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	w, err := Create(path, stereo16k)
	require.NoError(t, err)

	pcm := make([]byte, 1600*stereo16k.FrameSize())
	for i := 0; i < len(pcm); i += 2 {
		audio.PutSample(pcm, i, int16(i%2000-1000))
	}
	// Split mid-frame to exercise the carry.
	require.NoError(t, w.Write(pcm[:7]))
	require.NoError(t, w.Write(pcm[7:]))
	assert.Equal(t, int64(1600), w.Frames())
	assert.InDelta(t, 0.1, w.Duration(), 1e-9)
	require.NoError(t, w.Close())

	format, frames, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, stereo16k, format)
	assert.Equal(t, int64(1600), frames)

	got, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 16, got.BitDepth)
	assert.Equal(t, int64(1600), got.Frames())
	assert.InDelta(t, 0.1, got.Duration(), 1e-9)
	assert.Equal(t, audio.BytesToInts(nil, pcm), got.Samples)
	assert.InDelta(t, 32768.0, got.FullScale(), 0)
}

func TestCreateRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := Create(path, stereo16k)
	assert.ErrorIs(t, err, types.ErrStorageWriteFailure)
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Decode(filepath.Join(dir, "missing.wav"))
	assert.ErrorIs(t, err, types.ErrAssetUnreadable)

	junk := filepath.Join(dir, "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("RIFF but not really"), 0o644))
	_, err = Decode(junk)
	assert.ErrorIs(t, err, types.ErrDecodeFailure)
}
