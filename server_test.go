package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/config"
	"github.com/oszuidwest/zwfm-cliprec/internal/device"
	"github.com/oszuidwest/zwfm-cliprec/internal/playback"
	"github.com/oszuidwest/zwfm-cliprec/internal/recording"
	"github.com/oszuidwest/zwfm-cliprec/internal/server"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))

	store, err := recording.Open(context.Background(), filepath.Join(dir, "recordings"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	backend := device.NewVirtual(device.Options{Buffer: 20 * time.Millisecond})
	arbiter := device.NewArbiter()
	capture := recording.NewCapture(backend, arbiter, store, recording.Static(true), recording.CaptureConfig{
		Format: types.Format{SampleRate: 48000, Channels: 1},
	})
	t.Cleanup(capture.Close)
	player := playback.New(backend, arbiter, 50*time.Millisecond)
	t.Cleanup(player.Close)

	commands := server.NewCommandHandler(server.Deps{
		Config:   cfg,
		Store:    store,
		Capture:  capture,
		Playback: player,
		Analyzer: waveform.New(200, waveform.ModePeak),
	})
	return NewServer(cfg, commands)
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t).SetupRoutes()

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("recordings", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var frame server.RecordingsFrame
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
		assert.Equal(t, server.FrameRecordings, frame.Type)
		assert.Empty(t, frame.Recordings)
	})

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var frame server.StatusFrame
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
		assert.Equal(t, types.CaptureIdle, frame.Capture.State)
		assert.Equal(t, 200, frame.Resolution)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestFanout(t *testing.T) {
	var debug, info bytes.Buffer
	logger := slog.New(fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}).With("component", "test")

	logger.Debug("quiet")
	logger.Info("loud", "n", 1)

	assert.Contains(t, debug.String(), "msg=quiet")
	assert.Contains(t, debug.String(), "component=test")
	assert.NotContains(t, info.String(), "quiet")
	assert.Contains(t, info.String(), `"msg":"loud"`)
	assert.Contains(t, info.String(), `"component":"test"`)
}

func TestSetupLoggingWithFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "cliprec.log")
	closer := setupLogging(config.Snapshot{LogLevel: "debug", LogPath: path, LogMaxSizeMB: 1})
	slog.Debug("hello file")
	require.NoError(t, closer.Close())

	assert.FileExists(t, path)
}
