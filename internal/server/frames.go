package server

import "github.com/oszuidwest/zwfm-cliprec/internal/types"

// Outbound frame types.
const (
	FrameStatus     = "status"
	FrameLevels     = "levels"
	FramePosition   = "position"
	FrameEvent      = "event"
	FrameEnvelope   = "envelope"
	FrameRecordings = "recordings"
	FrameRecording  = "recording"
	FramePermission = "permission"
	FrameDevices    = "devices"
	FrameError      = "error"
)

// CaptureStatus is the observable state of the capture session.
type CaptureStatus struct {
	State     types.CaptureState `json:"state"`
	Elapsed   float64            `json:"elapsed"`
	Level     float64            `json:"level"`
	PeakLevel float64            `json:"peak_level"`
}

// PlaybackStatus is the observable state of the playback session.
type PlaybackStatus struct {
	State     types.PlaybackState `json:"state"`
	Position  float64             `json:"position"`
	Duration  float64             `json:"duration"`
	Scrubbing bool                `json:"scrubbing"`
	Recording *types.Recording    `json:"recording,omitempty"`
}

// StatusFrame is the periodic full status snapshot.
type StatusFrame struct {
	Type         string                 `json:"type"`
	Capture      CaptureStatus          `json:"capture"`
	Playback     PlaybackStatus         `json:"playback"`
	Permission   types.PermissionStatus `json:"permission"`
	StoreVersion uint64                 `json:"store_version"`
	Resolution   int                    `json:"resolution"`
	Version      types.VersionInfo      `json:"version"`
}

// LevelsFrame carries a capture meter tick.
type LevelsFrame struct {
	Type      string  `json:"type"`
	Elapsed   float64 `json:"elapsed"`
	Level     float64 `json:"level"`
	PeakLevel float64 `json:"peak_level"`
}

// PositionFrame carries a playback position tick.
type PositionFrame struct {
	Type     string  `json:"type"`
	Position float64 `json:"position"`
}

// EventFrame forwards a session or store notification.
type EventFrame struct {
	Type  string      `json:"type"`
	Event types.Event `json:"event"`
	Code  string      `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

// EnvelopeFrame delivers an analysis result.
type EnvelopeFrame struct {
	Type     string         `json:"type"`
	Envelope types.Envelope `json:"envelope"`
}

// RecordingsFrame lists the store, newest first.
type RecordingsFrame struct {
	Type       string            `json:"type"`
	Recordings []types.Recording `json:"recordings"`
	Version    uint64            `json:"version"`
}

// RecordingFrame returns a single recording, such as a finalized take.
type RecordingFrame struct {
	Type      string          `json:"type"`
	Recording types.Recording `json:"recording"`
}

// PermissionFrame reports the microphone decision.
type PermissionFrame struct {
	Type   string                 `json:"type"`
	Status types.PermissionStatus `json:"status"`
}

// DevicesFrame lists the audio devices found on the host.
type DevicesFrame struct {
	Type    string              `json:"type"`
	Devices []types.AudioDevice `json:"devices"`
}

// ErrorFrame reports a failed command with its taxonomy code.
type ErrorFrame struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorFrame(command string, err error) ErrorFrame {
	return ErrorFrame{Type: FrameError, Command: command, Code: types.ErrorCode(err), Message: err.Error()}
}

// eventFrame converts a bus event into the frame sent to clients.
func eventFrame(ev types.Event) any {
	switch ev.Kind {
	case types.EventLevel:
		return LevelsFrame{Type: FrameLevels, Elapsed: ev.Elapsed, Level: ev.Level, PeakLevel: ev.PeakLevel}
	case types.EventPosition:
		return PositionFrame{Type: FramePosition, Position: ev.Position}
	}
	f := EventFrame{Type: FrameEvent, Event: ev}
	if ev.Err != nil {
		f.Code = types.ErrorCode(ev.Err)
		f.Error = ev.Err.Error()
	}
	return f
}
