// Package audio provides PCM helpers, level metering and the platform
// commands used to reach audio hardware.
package audio

import (
	"errors"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// PlatformConfig defines platform-specific audio process configuration.
type PlatformConfig struct {
	// CaptureCommand is the executable for recording (e.g., "arecord", "ffmpeg").
	CaptureCommand string

	// PlaybackCommand is the executable for rendering (e.g., "aplay", "ffplay").
	PlaybackCommand string

	// DefaultInput is used when no input device is configured.
	DefaultInput string

	// DefaultOutput is used when no output device is configured.
	DefaultOutput string

	// CaptureArgs returns arguments that write raw PCM in f to stdout.
	CaptureArgs func(device string, f types.Format) []string

	// PlaybackArgs returns arguments that read raw PCM in f from stdin.
	PlaybackArgs func(device string, f types.Format) []string
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, it attempts to use the default or auto-detect.
func BuildCaptureCommand(device string, f types.Format) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultInput
	}

	// Auto-detect if still empty (Windows has no safe default).
	if device == "" {
		devices := ListDevices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	return cfg.CaptureCommand, cfg.CaptureArgs(device, f), nil
}

// BuildPlaybackCommand returns the command and arguments for audio playback.
func BuildPlaybackCommand(device string, f types.Format) (cmd string, args []string) {
	cfg := getPlatformConfig()
	if device == "" {
		device = cfg.DefaultOutput
	}
	return cfg.PlaybackCommand, cfg.PlaybackArgs(device, f)
}
