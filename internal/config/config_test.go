package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)

	snap := cfg.Snapshot()
	assert.Equal(t, "127.0.0.1:8080", snap.WebAddr)
	assert.Equal(t, "exec", snap.Backend)
	assert.Equal(t, types.Format{SampleRate: 48000, Channels: 1}, snap.Format)
	assert.Equal(t, 20*time.Millisecond, snap.Buffer)
	assert.Equal(t, 100*time.Millisecond, snap.MeterInterval)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "recordings"), snap.StoragePath)
	assert.Equal(t, 200, snap.WaveformResolution)
	assert.Equal(t, "peak", snap.WaveformMode)
	assert.Equal(t, DefaultLogMaxBackups, snap.LogMaxBackups)
	assert.False(t, snap.HasLogPath())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audio":{"backend":"null","channels":2},"waveform":{"resolution":300}}`), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.Equal(t, "null", snap.Backend)
	assert.Equal(t, 2, snap.Format.Channels)
	assert.Equal(t, 48000, snap.Format.SampleRate)
	assert.Equal(t, 300, snap.WaveformResolution)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	cases := map[string]string{
		"meter too slow":     `{"meter":{"interval_ms":500}}`,
		"resolution too low": `{"waveform":{"resolution":10}}`,
		"unknown backend":    `{"audio":{"backend":"jack"}}`,
		"unknown mode":       `{"waveform":{"mode":"mean"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			assert.Error(t, New(path).Load())
		})
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	err := New(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestSettersPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	require.NoError(t, cfg.SetAudioInput("default:CARD=USB"))
	require.NoError(t, cfg.SetWaveformResolution(400))
	assert.Error(t, cfg.SetWaveformResolution(50))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	snap := reloaded.Snapshot()
	assert.Equal(t, "default:CARD=USB", snap.AudioInput)
	assert.Equal(t, 400, snap.WaveformResolution)
}
