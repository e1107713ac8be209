package types

import "time"

// EventKind identifies what an Event reports.
type EventKind string

const (
	// EventState is published on every state transition.
	EventState EventKind = "state"
	// EventLevel carries elapsed time and meter level while recording.
	EventLevel EventKind = "level"
	// EventPosition carries the playback position while playing.
	EventPosition EventKind = "position"
	// EventFinalized is published when a capture becomes a Recording.
	EventFinalized EventKind = "finalized"
	// EventCompleted is published when playback reaches the end of the asset.
	EventCompleted EventKind = "completed"
	// EventFailed is published when a session aborts on an error.
	EventFailed EventKind = "failed"
	// EventDeleted is published when a recording is removed from the store.
	EventDeleted EventKind = "deleted"
)

// Event is a notification from a session or the store.
type Event struct {
	Kind      EventKind  `json:"kind"`
	Source    string     `json:"source"`
	State     string     `json:"state,omitzero"`
	Elapsed   float64    `json:"elapsed,omitzero"`
	Level     float64    `json:"level,omitzero"`
	PeakLevel float64    `json:"peak_level,omitzero"`
	Position  float64    `json:"position,omitzero"`
	Recording *Recording `json:"recording,omitempty"`
	Err       error      `json:"-"`
	Time      time.Time  `json:"time"`
}
