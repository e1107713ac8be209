//go:build linux

package audio

import (
	"regexp"
	"strconv"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

func getPlatformConfig() PlatformConfig {
	return PlatformConfig{
		CaptureCommand:  "arecord",
		PlaybackCommand: "aplay",
		DefaultInput:    "default",
		DefaultOutput:   "default",
		CaptureArgs:     buildLinuxCaptureArgs,
		PlaybackArgs:    buildLinuxPlaybackArgs,
	}
}

func alsaArgs(device string, f types.Format) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
		"-t", "raw",
		"-q",
	}
}

func buildLinuxCaptureArgs(device string, f types.Format) []string {
	return append(alsaArgs(device, f), "-")
}

func buildLinuxPlaybackArgs(device string, f types.Format) []string {
	return append(alsaArgs(device, f), "-")
}

func (cfg PlatformConfig) ListDevices() []types.AudioDevice {
	return parseDeviceList(&DeviceListConfig{
		Command:          []string{"arecord", "-l"},
		AudioStartMarker: "", // No marker, parse all lines
		DevicePattern:    regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseDevice: func(matches []string) *types.AudioDevice {
			if len(matches) < 4 {
				return nil
			}
			return &types.AudioDevice{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		FallbackDevices: []types.AudioDevice{
			{ID: "default", Name: "System default"},
		},
	})
}
