// Package types provides shared type definitions used across the recorder.
package types

import "time"

// CaptureState represents the current state of a capture session.
type CaptureState string

const (
	// CaptureIdle indicates no live input stream.
	CaptureIdle CaptureState = "idle"
	// CapturePermissionPending indicates a microphone permission prompt is outstanding.
	CapturePermissionPending CaptureState = "permission_pending"
	// CaptureRecording indicates audio is being written to a backing file.
	CaptureRecording CaptureState = "recording"
	// CaptureFinalizing indicates the backing file is being closed and persisted.
	CaptureFinalizing CaptureState = "finalizing"
)

// PlaybackState represents the current state of a playback session.
type PlaybackState string

const (
	// PlaybackIdle indicates nothing is loaded.
	PlaybackIdle PlaybackState = "idle"
	// PlaybackLoaded indicates an asset is decoded and ready.
	PlaybackLoaded PlaybackState = "loaded"
	// PlaybackPlaying indicates audio is being rendered to the output device.
	PlaybackPlaying PlaybackState = "playing"
	// PlaybackPaused indicates output is halted with the position preserved.
	PlaybackPaused PlaybackState = "paused"
	// PlaybackStopped indicates output is halted and the position reset.
	PlaybackStopped PlaybackState = "stopped"
)

// PermissionStatus is the host platform's microphone access decision.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Shutdown settings.
const (
	ShutdownTimeout = 3 * time.Second       // Time to wait for a device process before SIGKILL
	PollInterval    = 50 * time.Millisecond // Interval for polling process state
)

// Format describes interleaved signed 16-bit PCM.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// BytesPerSample is the size of one S16LE sample.
const BytesPerSample = 2

// FrameSize returns the number of bytes in one frame (one sample per channel).
func (f Format) FrameSize() int {
	return f.Channels * BytesPerSample
}

// FramesToSeconds converts a frame count to seconds.
func (f Format) FramesToSeconds(frames int64) float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(frames) / float64(f.SampleRate)
}

// SecondsToFrames converts seconds to the nearest lower frame index.
func (f Format) SecondsToFrames(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(seconds * float64(f.SampleRate))
}

// AudioDevice represents an audio device available on the system.
type AudioDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VersionInfo describes the running build and the latest published release.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
}
