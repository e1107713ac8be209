//go:build darwin

package audio

import (
	"regexp"

	"github.com/oszuidwest/zwfm-cliprec/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		CaptureCommand:  "ffmpeg",
		PlaybackCommand: "ffplay",
		DefaultInput:    ":0",
		DefaultOutput:   "",
		CaptureArgs: func(device string, f types.Format) []string {
			return ffmpeg.CaptureArgs("avfoundation", device, f)
		},
		PlaybackArgs: func(_ string, f types.Format) []string {
			// ffplay always renders to the system default output.
			return ffmpeg.PlaybackArgs(f)
		},
	}
}

func (cfg PlatformConfig) ListDevices() []types.AudioDevice {
	return parseDeviceList(&DeviceListConfig{
		Command:          []string{"ffmpeg", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		AudioStartMarker: "AVFoundation audio devices:",
		AudioStopMarker:  "AVFoundation video devices:",
		DevicePattern:    regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		ParseDevice: func(matches []string) *types.AudioDevice {
			if len(matches) < 3 {
				return nil
			}
			return &types.AudioDevice{
				ID:   ":" + matches[1],
				Name: matches[2],
			}
		},
	})
}
