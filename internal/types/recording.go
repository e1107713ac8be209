package types

import "time"

// Recording is one finalized audio clip. Values are never mutated after
// finalize; Location identifies the clip for the lifetime of the store.
type Recording struct {
	Location  string    `json:"location"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Duration  float64   `json:"duration"` // seconds
}

// IsZero reports whether r is the zero Recording.
func (r Recording) IsZero() bool {
	return r.Location == ""
}

// Envelope is a fixed-resolution amplitude summary of a recording.
// Every sample is in [0,1] and len(Samples) equals the requested resolution.
type Envelope struct {
	Samples   []float64 `json:"samples"`
	Recording Recording `json:"recording"`
}

// Len returns the number of envelope samples.
func (e Envelope) Len() int {
	return len(e.Samples)
}
