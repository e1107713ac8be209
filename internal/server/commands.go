package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-cliprec/internal/config"
	"github.com/oszuidwest/zwfm-cliprec/internal/playback"
	"github.com/oszuidwest/zwfm-cliprec/internal/recording"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
	"github.com/oszuidwest/zwfm-cliprec/internal/waveform"
)

// Command is a command received from a WebSocket client.
type Command struct {
	Type       string   `json:"type"`
	Location   string   `json:"location,omitempty"`
	Name       string   `json:"name,omitempty"`
	From       *float64 `json:"from,omitempty"`
	At         float64  `json:"at,omitempty"`
	Granted    bool     `json:"granted,omitempty"`
	Resolution int      `json:"resolution,omitempty"`
}

// Deps are the components commands act on.
type Deps struct {
	Config   *config.Config
	Store    *recording.Store
	Capture  *recording.Capture
	Playback *playback.Session
	Analyzer *waveform.Analyzer
	// Prompt is set when the microphone policy asks an operator.
	Prompt  *recording.Prompt
	Devices func() []types.AudioDevice
	Version func() types.VersionInfo
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	Deps
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(deps Deps) *CommandHandler {
	return &CommandHandler{Deps: deps}
}

// Handle performs cmd. Immediate results and the results of background work
// are delivered through send; a returned error means the command failed.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command, send func(any)) error {
	switch cmd.Type {
	case "list":
		items, version := h.Store.Snapshot()
		send(RecordingsFrame{Type: FrameRecordings, Recordings: items, Version: version})
	case "devices":
		send(DevicesFrame{Type: FrameDevices, Devices: h.devices()})
	case "check_permission":
		send(PermissionFrame{Type: FramePermission, Status: h.Capture.CheckPermission()})
	case "permission":
		return h.handlePermission(cmd)
	case "start_recording":
		return h.handleStartRecording(ctx, send)
	case "stop_recording":
		return h.handleStopRecording(ctx, send)
	case "cancel_recording":
		return h.Capture.Cancel()
	case "load":
		return h.handleLoad(ctx, cmd, send)
	case "play":
		if cmd.From != nil {
			return h.Playback.PlayFrom(*cmd.From)
		}
		return h.Playback.Play()
	case "pause":
		return h.Playback.Pause()
	case "stop_playback":
		return h.Playback.Stop()
	case "seek":
		return h.Playback.Seek(cmd.At)
	case "begin_scrub":
		return h.Playback.BeginScrub()
	case "end_scrub":
		return h.Playback.EndScrub(cmd.At)
	case "delete":
		return h.handleDelete(cmd)
	case "rename":
		rec, err := h.Store.Rename(cmd.Location, cmd.Name)
		if err != nil {
			return err
		}
		send(RecordingFrame{Type: FrameRecording, Recording: rec})
	case "analyze":
		rec, err := h.lookup(cmd.Location)
		if err != nil {
			return err
		}
		h.analyze(ctx, rec, send)
	case "set_resolution":
		return h.handleSetResolution(cmd)
	default:
		slog.Warn("unknown WebSocket command type", "type", cmd.Type)
		return fmt.Errorf("%w: unknown command %q", types.ErrInvalidState, cmd.Type)
	}
	return nil
}

func (h *CommandHandler) devices() []types.AudioDevice {
	if h.Devices == nil {
		return nil
	}
	return h.Devices()
}

func (h *CommandHandler) lookup(location string) (types.Recording, error) {
	if err := util.ValidateRequired("location", location); err != nil {
		return types.Recording{}, err
	}
	rec, ok := h.Store.Get(location)
	if !ok {
		return types.Recording{}, fmt.Errorf("%w: recording %s", types.ErrNotFound, location)
	}
	return rec, nil
}

func (h *CommandHandler) handlePermission(cmd Command) error {
	if h.Prompt == nil {
		return fmt.Errorf("%w: microphone permission is not prompted", types.ErrInvalidState)
	}
	slog.Info("permission: answered", "granted", cmd.Granted)
	h.Prompt.Resolve(cmd.Granted)
	return nil
}

// handleStartRecording prompts and starts in the background, because the
// prompt is answered by a later command.
func (h *CommandHandler) handleStartRecording(ctx context.Context, send func(any)) error {
	if h.Capture.CheckPermission() != types.PermissionUndetermined {
		return h.Capture.RequestPermissionAndStart(ctx)
	}
	go func() {
		if err := h.Capture.RequestPermissionAndStart(ctx); err != nil {
			send(errorFrame("start_recording", err))
		}
	}()
	return nil
}

func (h *CommandHandler) handleStopRecording(ctx context.Context, send func(any)) error {
	rec, err := h.Capture.Stop()
	if err != nil {
		return err
	}
	send(RecordingFrame{Type: FrameRecording, Recording: rec})
	h.analyze(ctx, rec, send)
	return nil
}

// handleLoad stops whatever is playing, loads the recording and starts its
// analysis.
func (h *CommandHandler) handleLoad(ctx context.Context, cmd Command, send func(any)) error {
	rec, err := h.lookup(cmd.Location)
	if err != nil {
		return err
	}
	switch h.Playback.State() {
	case types.PlaybackLoaded, types.PlaybackPlaying, types.PlaybackPaused:
		if err := h.Playback.Stop(); err != nil {
			return err
		}
	}
	if err := h.Playback.Load(rec); err != nil {
		return err
	}
	h.analyze(ctx, rec, send)
	return nil
}

// handleDelete unloads the recording from playback before deleting it.
func (h *CommandHandler) handleDelete(cmd Command) error {
	rec, err := h.lookup(cmd.Location)
	if err != nil {
		return err
	}
	if cur, ok := h.Playback.Current(); ok && cur.Location == rec.Location {
		h.Playback.Close()
	}
	return h.Store.Delete(rec)
}

func (h *CommandHandler) handleSetResolution(cmd Command) error {
	if err := h.Config.SetWaveformResolution(cmd.Resolution); err != nil {
		return err
	}
	slog.Info("set_resolution: changed envelope resolution", "resolution", cmd.Resolution)
	h.Analyzer.SetResolution(cmd.Resolution)
	return nil
}

func (h *CommandHandler) analyze(ctx context.Context, rec types.Recording, send func(any)) {
	h.Analyzer.AnalyzeAsync(ctx, rec, func(env types.Envelope, err error) {
		if err != nil {
			slog.Warn("analyze: failed", "location", rec.Location, "error", err)
			send(errorFrame("analyze", err))
			return
		}
		send(EnvelopeFrame{Type: FrameEnvelope, Envelope: env})
	})
}

// Status returns a full status snapshot.
func (h *CommandHandler) Status() StatusFrame {
	level, peak := h.Capture.Level()
	_, version := h.Store.Snapshot()

	ps := PlaybackStatus{
		State:     h.Playback.State(),
		Position:  h.Playback.Position(),
		Duration:  h.Playback.Duration(),
		Scrubbing: h.Playback.Scrubbing(),
	}
	if rec, ok := h.Playback.Current(); ok {
		ps.Recording = &rec
	}

	status := StatusFrame{
		Type: FrameStatus,
		Capture: CaptureStatus{
			State:     h.Capture.State(),
			Elapsed:   h.Capture.Elapsed(),
			Level:     level,
			PeakLevel: peak,
		},
		Playback:     ps,
		Permission:   h.Capture.CheckPermission(),
		StoreVersion: version,
		Resolution:   h.Analyzer.Resolution(),
	}
	if h.Version != nil {
		status.Version = h.Version()
	}
	return status
}

// commandName normalizes a command type for logs and error frames.
func commandName(cmd Command) string {
	return strings.TrimSpace(cmd.Type)
}
