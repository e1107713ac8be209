//go:build windows

package audio

import (
	"regexp"
	"strings"

	"github.com/oszuidwest/zwfm-cliprec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		CaptureCommand:  "ffmpeg",
		PlaybackCommand: "ffplay",
		DefaultInput:    "", // Auto-detect, no safe default on Windows
		DefaultOutput:   "",
		CaptureArgs: func(device string, f types.Format) []string {
			return ffmpeg.CaptureArgs("dshow", device, f)
		},
		PlaybackArgs: func(_ string, f types.Format) []string {
			return ffmpeg.PlaybackArgs(f)
		},
	}
}

func (cfg PlatformConfig) ListDevices() []types.AudioDevice {
	return parseDeviceList(&DeviceListConfig{
		Command:          []string{"ffmpeg", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		AudioStartMarker: "DirectShow audio devices",
		AudioStopMarker:  "DirectShow video devices",
		DevicePattern:    regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"`),
		ParseDevice: func(matches []string) *types.AudioDevice {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &types.AudioDevice{
				ID:   "audio=" + name,
				Name: name,
			}
		},
	})
}
