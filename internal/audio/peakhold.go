package audio

import "time"

// PeakHoldDuration is how long peaks are held before decay.
const PeakHoldDuration = 1500 * time.Millisecond

// PeakHolder tracks peak-hold state for the input meter.
type PeakHolder struct {
	held     float64
	heldTime time.Time
}

// NewPeakHolder creates a new peak holder initialized to silence.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{}
}

// Update records the current meter value and returns the held peak.
// A higher value replaces the held one immediately; a lower value only
// replaces it once the hold time has expired.
func (p *PeakHolder) Update(value float64, now time.Time) float64 {
	if value >= p.held || now.Sub(p.heldTime) > PeakHoldDuration {
		p.held = value
		p.heldTime = now
	}
	return p.held
}

// Reset clears the held peak.
func (p *PeakHolder) Reset() {
	p.held = 0
	p.heldTime = time.Time{}
}
