package device

import (
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

// Arbiter grants the audio hardware to one session at a time. Capture and
// playback are mutually exclusive: a request while another owner holds the
// hardware is rejected, never queued.
type Arbiter struct {
	mu    sync.Mutex
	owner string
}

// NewArbiter creates an arbiter with no owner.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Acquire grants the hardware to owner. It is idempotent for the current owner.
func (a *Arbiter) Acquire(owner string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner != "" && a.owner != owner {
		return fmt.Errorf("%w: audio device in use by %s", types.ErrInvalidState, a.owner)
	}
	a.owner = owner
	return nil
}

// Release gives the hardware up if owner holds it.
func (a *Arbiter) Release(owner string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owner == owner {
		a.owner = ""
	}
}

// Owner returns the current owner, or "" when the hardware is free.
func (a *Arbiter) Owner() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}
