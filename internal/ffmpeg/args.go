// Package ffmpeg provides shared helpers for raw PCM pipes to and from
// external audio processes.
package ffmpeg

import (
	"bytes"
	"strconv"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

// MaxStderrSize limits the stderr buffer to prevent memory exhaustion.
const MaxStderrSize = 64 * 1024 // 64KB

// ExtractLastError extracts the last meaningful error line from process stderr.
// Returns empty string if no meaningful error found.
func ExtractLastError(stderr string) string {
	if stderr == "" {
		return ""
	}
	lines := bytes.Split([]byte(stderr), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := string(bytes.TrimSpace(lines[i]))
		if line != "" {
			if len(line) > 200 {
				return line[:200] + "..."
			}
			return line
		}
	}
	return ""
}

// RawFormatArgs returns the FFmpeg arguments describing raw S16LE PCM in f.
func RawFormatArgs(f types.Format) []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
	}
}

// CaptureArgs returns FFmpeg arguments that read from an input device and
// write raw PCM in f to stdout.
func CaptureArgs(inputFormat, device string, f types.Format) []string {
	args := []string{
		"-f", inputFormat,
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
	}
	args = append(args, RawFormatArgs(f)...)
	return append(args, "pipe:1")
}

// PlaybackArgs returns ffplay arguments that render raw PCM in f read from stdin.
func PlaybackArgs(f types.Format) []string {
	args := []string{
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "warning",
	}
	args = append(args, RawFormatArgs(f)...)
	return append(args, "-i", "pipe:0")
}
